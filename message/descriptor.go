// Package message implements the message base: a per-type immutable
// descriptor table (version, class-level addressing defaults, property
// definitions) plus instance operations (publish, validate, pretty-print,
// addressing accessors) layered over header, serializer, and transport.
package message

import (
	"log/slog"
	"sync"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
)

// PropertySpec describes one business property a message class declares.
type PropertySpec struct {
	Name        string
	Required    bool
	Validator   Validator
	Default     any
	DefaultFunc func() any
	Description string
}

func (p PropertySpec) resolveDefault() (any, bool) {
	if p.DefaultFunc != nil {
		return p.DefaultFunc(), true
	}
	if p.Default != nil {
		return p.Default, true
	}
	return nil, false
}

// Descriptor is the per-type, immutable declaration a message class is
// described by once; instances reference it and may override any of its
// class-level addressing/plugin defaults.
type Descriptor struct {
	Class       string
	Version     int
	Description string

	From    string
	To      string
	ReplyTo string

	Properties []PropertySpec

	Transport  transport.Transport
	Serializer serializer.Serializer
	Logger     *slog.Logger
}

func (d *Descriptor) property(name string) (PropertySpec, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// Registry is the process-wide table of message descriptors, keyed by
// class name.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Descriptor)}
}

// Register adds (or replaces) the descriptor for its own Class.
func (r *Registry) Register(d *Descriptor) {
	if d.Version < 1 {
		d.Version = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[d.Class] = d
}

// Get looks up the descriptor registered for class.
func (r *Registry) Get(class string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[class]
	return d, ok
}

// Default is the process-wide descriptor registry. Call sites typically
// register their message classes here at init time.
var Default = NewRegistry()

func resolveLogger(d *Descriptor) *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return logger.L()
}

var errUnknownClass = func(class string) error {
	return apperrors.New(apperrors.CodeUnknownMessageClass, "no message descriptor registered for class: "+class, nil)
}
