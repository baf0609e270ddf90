package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/executor"
	"github.com/sakif/vinstackcode/internal/metrics"
	"github.com/sakif/vinstackcode/internal/tagging"
)

const MaxStdinLength = 64 * 1024

// ExecutionService validates run requests and records execution metrics in
// front of the sandbox. The sandbox itself enforces the timeout.
type ExecutionService struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewExecutionService accepts a nil executor, for servers started without a
// Docker daemon. Every run then reports the code runner as unavailable.
func NewExecutionService(exec executor.Executor, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{exec: exec, logger: logger}
}

func (s *ExecutionService) Languages() []string {
	if s.exec == nil {
		return []string{}
	}
	return s.exec.Languages()
}

// Run executes one request. A run that times out is a successful call with
// Status executor.StatusTimeout, not an error.
func (s *ExecutionService) Run(ctx context.Context, req executor.Request) (*executor.Result, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code cannot be empty")
	}
	if len(req.Code) > MaxContentLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxContentLength))
	}
	if len(req.Stdin) > MaxStdinLength {
		return nil, apperror.ValidationFailed("stdin",
			fmt.Sprintf("stdin must be %d bytes or less", MaxStdinLength))
	}
	req.Language = tagging.NormalizeLanguage(req.Language)
	if req.Language == "" {
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	if s.exec == nil {
		return nil, apperror.Unavailable("code runner")
	}

	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, executor.ErrUnsupportedLanguage) {
			return nil, apperror.ValidationFailed("language",
				fmt.Sprintf("%s is not supported; try one of %s", req.Language, strings.Join(s.exec.Languages(), ", ")))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("code execution failed",
			slog.String("language", req.Language),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("executing code: %w", err)
	}

	metrics.RecordExecution(req.Language, string(res.Status), res.Duration)
	s.logger.Debug("code executed",
		slog.String("language", req.Language),
		slog.String("status", string(res.Status)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}
