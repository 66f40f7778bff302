// Package serializer defines the encode/decode contract used to turn a
// message's header and payload into bytes that travel through a
// transport, and back.
package serializer

import (
	"github.com/arielkovacs/msgbus/header"
)

// Envelope is the flat, canonical wire shape: a header plus an opaque
// payload. It is what every Serializer implementation encodes/decodes.
type Envelope struct {
	Header  *header.Header `json:"header"`
	Payload map[string]any `json:"payload"`
}

// Serializer encodes an Envelope to bytes and decodes bytes back into one.
// Implementations must round-trip: decode(encode(v)) yields an Envelope
// from which a message equal in fields to v can be reconstructed.
type Serializer interface {
	// Name identifies this serializer (stamped into header.Serializer).
	Name() string

	// Encode turns an envelope into bytes for transport.
	Encode(env *Envelope) ([]byte, error)

	// Decode turns transport bytes back into an envelope.
	Decode(data []byte) (*Envelope, error)
}
