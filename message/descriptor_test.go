package message_test

import (
	"testing"

	"github.com/arielkovacs/msgbus/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetReturnsRegisteredDescriptor(t *testing.T) {
	reg := message.NewRegistry()
	reg.Register(&message.Descriptor{Class: "Ping", Version: 2})

	d, ok := reg.Get("Ping")
	require.True(t, ok)
	assert.Equal(t, "Ping", d.Class)
	assert.Equal(t, 2, d.Version)
}

func TestRegistryGetMissingClassReturnsFalse(t *testing.T) {
	reg := message.NewRegistry()
	_, ok := reg.Get("Unknown")
	assert.False(t, ok)
}

func TestRegistryDefaultsVersionToOne(t *testing.T) {
	reg := message.NewRegistry()
	reg.Register(&message.Descriptor{Class: "Ping"})

	d, ok := reg.Get("Ping")
	require.True(t, ok)
	assert.Equal(t, 1, d.Version)
}
