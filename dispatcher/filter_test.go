package dispatcher_test

import (
	"testing"

	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/header"
	"github.com/stretchr/testify/assert"
)

func TestFilterAcceptsWhenUnset(t *testing.T) {
	f := dispatcher.Filter{}
	h := header.New("Ping", "web")
	assert.True(t, f.Accepts(h))
}

func TestFilterLiteralFrom(t *testing.T) {
	f := dispatcher.Filter{From: []dispatcher.Acceptor{dispatcher.Literal("payment-service")}}

	match := header.New("Ping", "payment-service")
	assert.True(t, f.Accepts(match))

	noMatch := header.New("Ping", "web")
	assert.False(t, f.Accepts(noMatch))
}

func TestFilterRegexTo(t *testing.T) {
	f := dispatcher.Filter{To: []dispatcher.Acceptor{dispatcher.MustRegex("^prod-.*")}}

	match := header.New("Ping", "web")
	match.To = "prod-fulfillment"
	assert.True(t, f.Accepts(match))

	noMatch := header.New("Ping", "web")
	noMatch.To = "dev-fulfillment"
	assert.False(t, f.Accepts(noMatch))
}

func TestFilterBroadcastOnly(t *testing.T) {
	f := dispatcher.Filter{Broadcast: dispatcher.BroadcastOnly()}

	broadcast := header.New("Ping", "web")
	assert.True(t, f.Accepts(broadcast))

	addressed := header.New("Ping", "web")
	addressed.To = "prod-fulfillment"
	assert.False(t, f.Accepts(addressed))
}

func TestFilterIndependence(t *testing.T) {
	f1 := dispatcher.Filter{From: []dispatcher.Acceptor{dispatcher.Literal("payment-service")}}
	f2 := dispatcher.Filter{To: []dispatcher.Acceptor{dispatcher.MustRegex("^prod-.*")}}

	x := header.New("Ping", "payment-service")
	x.To = "prod-fulfillment"

	y := header.New("Ping", "web")
	y.To = "dev-fulfillment"

	assert.True(t, f1.Accepts(x))
	assert.True(t, f2.Accepts(x))
	assert.False(t, f1.Accepts(y))
	assert.False(t, f2.Accepts(y))
}
