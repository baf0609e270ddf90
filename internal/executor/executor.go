// Package executor defines how untrusted code is run.
//
// WHY AN INTERFACE?
// Handlers and the quest service only need "run this code, give me output".
// The Docker implementation lives in a sub-package so tests can substitute a
// fake without a Docker daemon.
//
// ISOLATION:
// Code never runs inside this process. Implementations must provide a real
// boundary (a container, a separate process) and must not touch process-wide
// state such as os.Stdout to capture output.
package executor

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout is how long a run may take before it resolves as timed out.
const DefaultTimeout = 5 * time.Second

// TimeoutExitCode mirrors the exit status of the unix timeout command.
const TimeoutExitCode = 124

// ErrUnsupportedLanguage is returned when no runtime is configured for the
// requested language.
var ErrUnsupportedLanguage = errors.New("executor: unsupported language")

// Status is the overall outcome of a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// StatusForExitCode maps a process exit code to a Status.
func StatusForExitCode(code int) Status {
	switch code {
	case 0:
		return StatusOK
	case TimeoutExitCode:
		return StatusTimeout
	default:
		return StatusError
	}
}

// Request is a single piece of code to run.
type Request struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin,omitempty"`
}

// Result is the output and status of a run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	Status   Status        `json:"status"`
}

// Executor runs code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	Languages() []string
}
