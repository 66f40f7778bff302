package message

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arielkovacs/msgbus"
	"github.com/arielkovacs/msgbus/header"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
)

// Message is one instance of a declared message class: a payload of
// business properties plus a header, resolved against its class
// descriptor. It exclusively owns its header; headers are never shared
// across instances.
type Message struct {
	desc    *Descriptor
	class   string
	header  *header.Header
	payload map[string]any

	fromOverride, toOverride, replyToOverride *string
	transportOverride                         transport.Transport
	serializerOverride                        serializer.Serializer
}

// New constructs a Message of class, applying the descriptor's property
// defaults for any field props omits.
func New(reg *Registry, class string, props map[string]any) (*Message, error) {
	desc, ok := reg.Get(class)
	if !ok {
		return nil, errUnknownClass(class)
	}

	payload := make(map[string]any, len(props)+len(desc.Properties))
	for k, v := range props {
		payload[k] = v
	}
	for _, p := range desc.Properties {
		if _, exists := payload[p.Name]; exists {
			continue
		}
		if def, ok := p.resolveDefault(); ok {
			payload[p.Name] = def
		}
	}

	return &Message{desc: desc, class: class, payload: payload}, nil
}

// FromEnvelope reconstructs a typed Message from a decoded envelope,
// enforcing the version gate: a header whose version does not match the
// class's declared version is rejected before any handler runs.
func FromEnvelope(reg *Registry, env *serializer.Envelope) (*Message, error) {
	desc, ok := reg.Get(env.Header.MessageClass)
	if !ok {
		return nil, errUnknownClass(env.Header.MessageClass)
	}
	if err := env.Header.CheckVersion(desc.Version); err != nil {
		return nil, err
	}

	from, to, replyTo := env.Header.From, env.Header.To, env.Header.ReplyTo
	return &Message{
		desc:            desc,
		class:           env.Header.MessageClass,
		header:          env.Header,
		payload:         env.Payload,
		fromOverride:    &from,
		toOverride:      &to,
		replyToOverride: &replyTo,
	}, nil
}

// Class returns the message's class name.
func (m *Message) Class() string { return m.class }

// Header returns the header stamped by the most recent Publish, or the
// header reconstructed by FromEnvelope; nil before the first Publish.
func (m *Message) Header() *header.Header { return m.header }

// From resolves to the instance override, else the class-level default.
func (m *Message) From() string {
	if m.fromOverride != nil {
		return *m.fromOverride
	}
	return m.desc.From
}

// SetFrom sets an instance-level from override and returns m for chaining.
func (m *Message) SetFrom(v string) *Message {
	m.fromOverride = &v
	return m
}

// FromConfigured reports whether an instance-level from override is set.
func (m *Message) FromConfigured() bool { return m.fromOverride != nil }

// FromMissing reports whether From resolves to the empty string.
func (m *Message) FromMissing() bool { return m.From() == "" }

// ResetFrom clears any instance-level from override.
func (m *Message) ResetFrom() *Message { m.fromOverride = nil; return m }

// To resolves to the instance override, else the class-level default.
// Empty means broadcast.
func (m *Message) To() string {
	if m.toOverride != nil {
		return *m.toOverride
	}
	return m.desc.To
}

// SetTo sets an instance-level to override and returns m for chaining.
func (m *Message) SetTo(v string) *Message {
	m.toOverride = &v
	return m
}

// ToConfigured reports whether an instance-level to override is set.
func (m *Message) ToConfigured() bool { return m.toOverride != nil }

// ToMissing reports whether To resolves to the empty string (broadcast).
func (m *Message) ToMissing() bool { return m.To() == "" }

// ResetTo clears any instance-level to override.
func (m *Message) ResetTo() *Message { m.toOverride = nil; return m }

// ReplyTo resolves to the instance override, else the class-level
// default, else From(), matching the header's own reply_to default.
func (m *Message) ReplyTo() string {
	if m.replyToOverride != nil {
		return *m.replyToOverride
	}
	if m.desc.ReplyTo != "" {
		return m.desc.ReplyTo
	}
	return m.From()
}

// SetReplyTo sets an instance-level reply_to override and returns m for chaining.
func (m *Message) SetReplyTo(v string) *Message {
	m.replyToOverride = &v
	return m
}

// ReplyToConfigured reports whether an instance-level reply_to override is set.
func (m *Message) ReplyToConfigured() bool { return m.replyToOverride != nil }

// ReplyToMissing reports whether ReplyTo resolves to the empty string.
func (m *Message) ReplyToMissing() bool { return m.ReplyTo() == "" }

// ResetReplyTo clears any instance-level reply_to override.
func (m *Message) ResetReplyTo() *Message { m.replyToOverride = nil; return m }

// UseTransport overrides the transport this message publishes through.
func (m *Message) UseTransport(t transport.Transport) *Message {
	m.transportOverride = t
	return m
}

// UseSerializer overrides the serializer this message encodes with.
func (m *Message) UseSerializer(s serializer.Serializer) *Message {
	m.serializerOverride = s
	return m
}

// Get returns a payload property by name.
func (m *Message) Get(name string) (any, bool) {
	v, ok := m.payload[name]
	return v, ok
}

// Set assigns a payload property.
func (m *Message) Set(name string, value any) *Message {
	m.payload[name] = value
	return m
}

func (m *Message) resolveTransport() (transport.Transport, error) {
	if m.transportOverride != nil {
		return m.transportOverride, nil
	}
	if m.desc.Transport != nil {
		return m.desc.Transport, nil
	}
	return msgbus.DefaultTransport()
}

func (m *Message) resolveSerializer() (serializer.Serializer, error) {
	if m.serializerOverride != nil {
		return m.serializerOverride, nil
	}
	if m.desc.Serializer != nil {
		return m.desc.Serializer, nil
	}
	if s := msgbus.DefaultSerializer(); s != nil {
		return s, nil
	}
	return nil, apperrors.New(apperrors.CodeSerializerNotConfigured, "no serializer resolved for message class "+m.class, nil)
}

// Validate checks the addressing invariant (from non-empty), then the
// required properties, running each declared validator.
func (m *Message) Validate() error {
	if m.FromMissing() {
		return apperrors.New(apperrors.CodeValidation, "message \"from\" is required", nil)
	}

	for _, p := range m.desc.Properties {
		v, exists := m.payload[p.Name]
		if p.Required && (!exists || v == nil) {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("required property %q is missing", p.Name), nil)
		}
		if exists && p.Validator != nil {
			if err := p.Validator.Validate(p.Name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Publish runs Validate implicitly, stamps a fresh header from the
// resolved addressing, encodes the envelope with the resolved serializer,
// and hands it to the resolved transport.
func (m *Message) Publish(ctx context.Context) error {
	if err := m.Validate(); err != nil {
		return err
	}

	tr, err := m.resolveTransport()
	if err != nil {
		return err
	}
	ser, err := m.resolveSerializer()
	if err != nil {
		return err
	}

	h := header.New(m.class, m.From())
	h.To = m.To()
	h.ReplyTo = m.ReplyTo()
	h.Version = m.desc.Version
	h.Serializer = ser.Name()
	if err := h.Validate(); err != nil {
		return err
	}

	env := &serializer.Envelope{Header: h, Payload: m.payload}
	data, err := ser.Encode(env)
	if err != nil {
		return err
	}

	m.header = h
	if err := tr.Publish(ctx, m.class, data); err != nil {
		return err
	}
	resolveLogger(m.desc).DebugContext(ctx, "message published",
		"class", m.class, "uuid", h.UUID, "transport", tr.Name())
	return nil
}

// ToHash returns a flat map of the message's properties plus its resolved
// addressing fields, prefixed with an underscore to avoid colliding with
// property names.
func (m *Message) ToHash() map[string]any {
	out := make(map[string]any, len(m.payload)+4)
	for k, v := range m.payload {
		out[k] = v
	}
	out["_class"] = m.class
	out["_from"] = m.From()
	out["_to"] = m.To()
	out["_reply_to"] = m.ReplyTo()
	return out
}

// PrettyPrint renders a readable dump of the message, optionally
// including header fields.
func (m *Message) PrettyPrint(includeHeader bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{\n", m.class)

	keys := make([]string, 0, len(m.payload))
	for k := range m.payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, m.payload[k])
	}

	if includeHeader && m.header != nil {
		fmt.Fprintf(&b, "  --- header ---\n  uuid: %s\n  from: %s\n  to: %s\n  reply_to: %s\n  version: %d\n",
			m.header.UUID, m.header.From, m.header.To, m.header.ReplyTo, m.header.Version)
	}

	b.WriteString("}")
	return b.String()
}
