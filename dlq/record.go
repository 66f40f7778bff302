package dlq

import (
	"time"

	"github.com/arielkovacs/msgbus/header"
)

// Record is one dead-lettered message: the full header, the serialized
// payload, and the failure context. One Record becomes exactly one JSON
// line in the backing file.
type Record struct {
	Timestamp     time.Time       `json:"timestamp"`
	Header        *header.Header  `json:"header"`
	Payload       string          `json:"payload"`
	PayloadFormat string          `json:"payload_format"`
	Error         string          `json:"error"`
	RetryCount    int             `json:"retry_count"`
	Transport     string          `json:"transport"`
	StackTrace    string          `json:"stack_trace,omitempty"`
}

// Statistics summarizes the contents of a DLQ.
type Statistics struct {
	Total   int
	ByClass map[string]int
	ByError map[string]int
}
