// Package msgbus is the process-wide facade: it holds the default
// transport, transport registry, serializer, logger, and DLQ that the message
// base resolves to when a message or its descriptor does not override
// them, initialized once and read-only after startup per the plugin
// resolution order (instance -> descriptor -> process default -> error).
package msgbus

import (
	"log/slog"
	"sync"

	"github.com/arielkovacs/msgbus/dlq"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
)

// Defaults is the process-wide configuration structure. It is safe for
// concurrent reads; writes should only happen once at startup, or in
// tests via Reset.
type Defaults struct {
	Transport  transport.Transport
	Serializer serializer.Serializer
	Logger     *slog.Logger
	DLQ        *dlq.DLQ
	Registry   *transport.Registry
}

var (
	mu       sync.RWMutex
	defaults = Defaults{
		Serializer: serializer.NewJSON(),
		Logger:     logger.L(),
		Registry:   transport.Default,
	}
)

// Configure replaces the process-wide defaults. Typically called once at
// process startup.
func Configure(d Defaults) {
	mu.Lock()
	defer mu.Unlock()
	if d.Serializer == nil {
		d.Serializer = defaults.Serializer
	}
	if d.Logger == nil {
		d.Logger = defaults.Logger
	}
	if d.Registry == nil {
		d.Registry = defaults.Registry
	}
	defaults = d
}

// Current returns a copy of the current process-wide defaults.
func Current() Defaults {
	mu.RLock()
	defer mu.RUnlock()
	return defaults
}

// DefaultTransport returns the process-wide default transport, or a
// NotConfigured error if none has been set.
func DefaultTransport() (transport.Transport, error) {
	mu.RLock()
	defer mu.RUnlock()
	if defaults.Transport == nil {
		return nil, apperrors.New(apperrors.CodeTransportNotConfigured, "no process-wide default transport configured", nil)
	}
	return defaults.Transport, nil
}

// DefaultSerializer returns the process-wide default serializer.
func DefaultSerializer() serializer.Serializer {
	mu.RLock()
	defer mu.RUnlock()
	return defaults.Serializer
}

// DefaultLogger returns the process-wide default logger.
func DefaultLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaults.Logger
}

// DefaultDLQ returns the process-wide default DLQ, if configured.
func DefaultDLQ() *dlq.DLQ {
	mu.RLock()
	defer mu.RUnlock()
	return defaults.DLQ
}

// Reset restores the zero-value defaults (except Serializer/Logger/
// Registry, which fall back to their process-wide baseline). Intended for
// test teardown so one test's Configure call cannot leak into another.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	defaults = Defaults{
		Serializer: serializer.NewJSON(),
		Logger:     logger.L(),
		Registry:   transport.Default,
	}
}
