// Package integration holds the HTTP plumbing shared by the third-party
// clients in its sub-packages (tts, video, payment, mentor).
//
// ERROR POLICY:
// Vendor failures never reach the user as raw errors. A network failure, a
// 5xx, a 429 or an auth failure on our own API key becomes
// apperror.Unavailable (503). A 4xx that means "your input was wrong" becomes
// apperror.ValidationFailed (400). The status code and body are logged, never
// returned. Each client calls through a circuit breaker; validation failures
// do not count against the vendor.
package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/apperror"
)

// maxErrorBody bounds how much of an error response is read for the log.
const maxErrorBody = 4 << 10

// Send performs req and returns the response when the status is 2xx. The
// caller closes the body.
func Send(client *http.Client, vendor string, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("vendor request failed",
			slog.String("vendor", vendor),
			slog.String("url", req.URL.Redacted()),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable(vendor)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(vendor, resp, logger)
}

// SendJSON performs req and decodes a 2xx JSON body into out.
func SendJSON(client *http.Client, vendor string, req *http.Request, out any, logger *slog.Logger) error {
	resp, err := Send(client, vendor, req, logger)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logger.Warn("vendor returned an unreadable body",
			slog.String("vendor", vendor),
			slog.String("error", err.Error()),
		)
		return apperror.Unavailable(vendor)
	}
	return nil
}

func statusError(vendor string, resp *http.Response, logger *slog.Logger) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	logger.Warn("vendor returned an error status",
		slog.String("vendor", vendor),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(body)),
	)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return apperror.ValidationFailed("request",
			fmt.Sprintf("%s rejected the request (status %d)", vendor, resp.StatusCode))
	default:
		return apperror.Unavailable(vendor)
	}
}

// AsUnavailable passes application errors through and turns anything else
// into apperror.Unavailable, logging the cause. SDK-based clients use it on
// errors that did not come through Send.
func AsUnavailable(vendor string, err error, logger *slog.Logger) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Warn("vendor call failed",
		slog.String("vendor", vendor),
		slog.String("error", err.Error()),
	)
	return apperror.Unavailable(vendor)
}
