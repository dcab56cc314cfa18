package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend is a connection this service depends on and reports in readiness checks.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
}

var errNotConfigured = errors.New("not configured")

const pingTimeout = 2 * time.Second

// checkBackend runs ping under its own deadline and prefixes failures with the backend name.
func checkBackend(ctx context.Context, name string, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Configured filters out backends that were never set up, such as a
// Postgres handle without a DSN.
func Configured(backends ...Backend) []Backend {
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if c, ok := b.(interface{ configured() bool }); ok && !c.configured() {
			continue
		}
		out = append(out, b)
	}
	return out
}
