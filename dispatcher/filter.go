package dispatcher

import (
	"regexp"

	"github.com/arielkovacs/msgbus/header"
)

// Acceptor matches a header's from/to field: either an exact literal or a
// compiled regular expression.
type Acceptor struct {
	literal string
	pattern *regexp.Regexp
}

// Literal returns an Acceptor that matches value by exact string equality.
func Literal(value string) Acceptor {
	return Acceptor{literal: value}
}

// Regex returns an Acceptor that matches any value accepted by pattern.
func Regex(pattern string) (Acceptor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Acceptor{}, err
	}
	return Acceptor{pattern: re}, nil
}

// MustRegex is Regex, panicking on an invalid pattern. Intended for
// package-level filter construction where the pattern is a compile-time
// constant.
func MustRegex(pattern string) Acceptor {
	a, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Acceptor) matches(value string) bool {
	if a.pattern != nil {
		return a.pattern.MatchString(value)
	}
	return a.literal == value
}

func acceptorsAccept(set []Acceptor, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, a := range set {
		if a.matches(value) {
			return true
		}
	}
	return false
}

// Filter is the per-subscription predicate over a header's from, to, and
// broadcast state. An absent From/To set accepts any value; a nil
// Broadcast accepts both broadcast and addressed messages.
type Filter struct {
	From      []Acceptor
	To        []Acceptor
	Broadcast *bool
}

// Accepts reports whether h satisfies every configured predicate.
func (f Filter) Accepts(h *header.Header) bool {
	if !acceptorsAccept(f.From, h.From) {
		return false
	}
	if !acceptorsAccept(f.To, h.To) {
		return false
	}
	if f.Broadcast != nil && *f.Broadcast != h.Broadcast() {
		return false
	}
	return true
}

func boolPtr(b bool) *bool { return &b }

// BroadcastOnly restricts a filter to messages with no recipient.
func BroadcastOnly() *bool { return boolPtr(true) }

// AddressedOnly restricts a filter to messages with an explicit recipient.
func AddressedOnly() *bool { return boolPtr(false) }
