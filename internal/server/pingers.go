package server

import (
	"context"
	"errors"
)

// depPinger adapts a named probe function to the [Pinger] interface.
type depPinger struct {
	name string
	ping func(ctx context.Context) error
}

func (p depPinger) Ping(ctx context.Context) error { return p.ping(ctx) }
func (p depPinger) Name() string                   { return p.name }

// NewPinger wraps a probe function as a named [Pinger]. The completion
// gateway, ticket store and vector backend all expose Ping methods that
// fit here directly.
func NewPinger(name string, ping func(ctx context.Context) error) Pinger {
	return depPinger{name: name, ping: ping}
}

// readyChecker is anything that can report readiness without I/O,
// such as the in-memory vector index.
type readyChecker interface {
	Ready() bool
}

// IndexPinger reports the vector index as unready until it has been
// created or loaded from disk.
func IndexPinger(name string, idx readyChecker) Pinger {
	return depPinger{name: name, ping: func(context.Context) error {
		if !idx.Ready() {
			return errors.New("index not loaded")
		}
		return nil
	}}
}
