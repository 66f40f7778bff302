package broker

import (
	"regexp"
	"strings"
)

// segmentSanitizer replaces any character outside the allowed routing-key
// alphabet with an underscore, matching the grammar in the external
// interfaces contract.
var segmentSanitizer = regexp.MustCompile(`[^a-z0-9_-]`)

// Sanitize lowercases an entity identifier and replaces any disallowed
// character with "_", producing a value safe to embed in a routing key.
func Sanitize(entity string) string {
	return segmentSanitizer.ReplaceAllString(strings.ToLower(entity), "_")
}

// RoutingKey builds the hierarchical exchange.message_class.from.to key a
// published message is routed under. The exchange and the entity
// identifiers (from, to) are sanitized per the routing key grammar;
// message_class is taken
// verbatim since a class name may itself already be a multi-segment
// hierarchical name (e.g. "order.new"). An empty to segment (broadcast)
// becomes the literal segment "broadcast". The exchange segment is
// omitted entirely when exchange is empty, so a broker configured with no
// exchange name produces a plain message_class.from.to key.
func RoutingKey(exchange, messageClass, from, to string) string {
	if to == "" {
		to = "broadcast"
	} else {
		to = Sanitize(to)
	}

	parts := make([]string, 0, 4)
	if exchange != "" {
		parts = append(parts, Sanitize(exchange))
	}
	parts = append(parts, messageClass, Sanitize(from), to)
	return strings.Join(parts, ".")
}

// Matches implements the segment automaton described in the routing key
// grammar: literal segments must be equal, "*" consumes exactly one
// segment, "#" consumes zero or more segments.
func Matches(pattern, key string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}

	head, rest := pattern[0], pattern[1:]

	switch head {
	case "#":
		// Zero or more segments: try consuming 0, 1, 2, ... segments of
		// key until the remaining pattern matches the remaining key.
		for i := 0; i <= len(key); i++ {
			if matchSegments(rest, key[i:]) {
				return true
			}
		}
		return false

	case "*":
		if len(key) == 0 {
			return false
		}
		return matchSegments(rest, key[1:])

	default:
		if len(key) == 0 || key[0] != head {
			return false
		}
		return matchSegments(rest, key[1:])
	}
}
