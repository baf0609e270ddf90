// Package supervisor runs the long-lived parts of the server under suture.
//
// TREE LAYOUT:
//
//	vinstackcode (root)
//	├── messaging-layer: realtime hub, event bridge
//	└── api-layer:       HTTP server
//
// A service that returns an error or panics is restarted with backoff. If a
// layer keeps failing past the threshold, suture backs off the whole layer
// instead of spinning. Every restart is logged through sutureslog.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the suture failure policy.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig tolerates five failures decaying over 30 seconds.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor and its two layers.
type Tree struct {
	root      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

// NewTree builds the tree. Zero fields in cfg take their defaults.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	spec := suture.Spec{
		EventHook:        hook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	root := suture.New("vinstackcode", spec)
	messaging := suture.New("messaging-layer", childSpec)
	api := suture.New("api-layer", childSpec)
	root.Add(messaging)
	root.Add(api)

	return &Tree{root: root, messaging: messaging, api: api}
}

// AddMessagingService supervises a realtime or event service.
func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService supervises an HTTP-facing service.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is canceled or the root gives up.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree and returns its exit channel.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored shutdown.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
