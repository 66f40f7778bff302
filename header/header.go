// Package header defines the identity and routing metadata attached to
// every msgbus message.
package header

import (
	"fmt"
	"os"
	"time"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/google/uuid"
)

func pid() string {
	return fmt.Sprintf("pid-%d", os.Getpid())
}

// Header is attached to every message. UUID and From are required once a
// message is published; To is optional (absent means broadcast).
type Header struct {
	UUID         string    `json:"uuid"`
	MessageClass string    `json:"message_class"`
	Version      int       `json:"version"`
	PublishedAt  time.Time `json:"published_at"`
	PublisherPID string    `json:"publisher_pid"`
	From         string    `json:"from"`
	To           string    `json:"to,omitempty"`
	ReplyTo      string    `json:"reply_to,omitempty"`
	Serializer   string    `json:"serializer,omitempty"`
}

// New generates a fresh Header for messageClass with a new UUID and the
// current timestamp. ReplyTo defaults to from when unset by the caller.
func New(messageClass, from string) *Header {
	return &Header{
		UUID:         uuid.New().String(),
		MessageClass: messageClass,
		Version:      1,
		PublishedAt:  time.Now().UTC(),
		PublisherPID: pid(),
		From:         from,
		ReplyTo:      from,
	}
}

// Broadcast reports whether this header has no recipient, i.e. it was
// published without a To address.
func (h *Header) Broadcast() bool {
	return h.To == ""
}

// Validate checks the invariants required once a message has been
// published: uuid, from, message_class non-empty and version >= 1.
func (h *Header) Validate() error {
	if h.UUID == "" {
		return apperrors.New(apperrors.CodeValidation, "header uuid is empty", nil)
	}
	if h.From == "" {
		return apperrors.New(apperrors.CodeValidation, "header from is empty", nil)
	}
	if h.MessageClass == "" {
		return apperrors.New(apperrors.CodeValidation, "header message_class is empty", nil)
	}
	if h.Version < 1 {
		return apperrors.New(apperrors.CodeValidation, "header version must be >= 1", nil)
	}
	return nil
}

// CheckVersion rejects a header whose version does not match the class's
// declared version.
func (h *Header) CheckVersion(classVersion int) error {
	if h.Version != classVersion {
		return apperrors.New(apperrors.CodeValidation, "header version does not match declared class version", nil)
	}
	return nil
}
