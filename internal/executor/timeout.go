package executor

import (
	"context"
	"time"
)

// RunFunc performs one run. It receives a context that is canceled when the
// timeout fires and should return promptly after that.
type RunFunc func(ctx context.Context) (*Result, error)

// RunWithTimeout races fn against a timer.
//
// If fn finishes first its result is returned with Duration and Status filled
// in. If the timer fires first the call resolves immediately with
// StatusTimeout and exit code 124; whatever fn was doing is abandoned and its
// eventual result discarded. The timer is the only thing that can produce a
// timeout, so a timed out result never arrives before the timeout mark.
//
// Cancellation of the parent ctx returns ctx.Err().
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn RunFunc) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	// Buffered so an abandoned run can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(runCtx)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		res := o.res
		if res == nil {
			res = &Result{}
		}
		res.Duration = time.Since(start)
		if res.Status == "" {
			res.Status = StatusForExitCode(res.ExitCode)
		}
		return res, nil

	case <-timer.C:
		return &Result{
			Stderr:   "\nExecution timed out.\n",
			ExitCode: TimeoutExitCode,
			Duration: time.Since(start),
			Status:   StatusTimeout,
		}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
