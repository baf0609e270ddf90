package breaker

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/apperror"
)

func newTestBreaker(t *testing.T, threshold uint32) *Breaker {
	t.Helper()
	return New("test-"+t.Name(), Settings{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: threshold,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecute_ReturnsValue(t *testing.T) {
	b := newTestBreaker(t, 2)

	got, err := Execute(b, func() (string, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "closed", b.State())
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, 2)
	boom := errors.New("vendor down")

	for i := 0; i < 2; i++ {
		err := b.Do(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.False(t, called, "open breaker must not call through")
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
}

func TestExecute_ClientErrorsDoNotTrip(t *testing.T) {
	b := newTestBreaker(t, 1)

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return apperror.ValidationFailed("text", "too long") })
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	}
	assert.Equal(t, "closed", b.State())
}
