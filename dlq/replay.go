package dlq

import (
	"context"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
)

// PublishFunc republishes a record's payload under a message class. The
// transport package supplies the live implementation; tests and replay
// overrides can supply a substitute.
type PublishFunc func(ctx context.Context, messageClass string, payload []byte) error

// ReplayResult is the outcome of a single-record replay.
type ReplayResult struct {
	Success bool
	Error   string
}

// BatchResult is the outcome of a multi-record replay.
type BatchResult struct {
	SuccessCount int
	FailCount    int
	Errors       []string
}

// ReplayOne reads the oldest record, republishes it via publish, and
// removes it from the queue only on success. A failed replay leaves the
// record in place so no message is lost to a transient republish error;
// callers decide whether to retry or clear.
func (d *DLQ) ReplayOne(ctx context.Context, publish PublishFunc) (ReplayResult, error) {
	d.mu.Lock()
	records, err := d.readAll()
	if err != nil {
		d.mu.Unlock()
		return ReplayResult{}, err
	}
	if len(records) == 0 {
		d.mu.Unlock()
		return ReplayResult{Success: false, Error: "dlq is empty"}, nil
	}
	head := records[0]
	d.mu.Unlock()

	if err := d.replayRecord(ctx, head, publish); err != nil {
		return ReplayResult{Success: false, Error: err.Error()}, nil
	}

	if err := d.removeByUUID(head); err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{Success: true}, nil
}

// ReplayBatch replays up to n records from the head, in order. Each
// record is attempted exactly once; a record that fails to republish
// stays in the queue and does not block the records behind it.
func (d *DLQ) ReplayBatch(ctx context.Context, n int, publish PublishFunc) (BatchResult, error) {
	d.mu.Lock()
	records, err := d.readAll()
	d.mu.Unlock()
	if err != nil {
		return BatchResult{}, err
	}
	if n > len(records) {
		n = len(records)
	}

	result := BatchResult{}
	for _, rec := range records[:n] {
		if err := d.replayRecord(ctx, rec, publish); err != nil {
			result.FailCount++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if err := d.removeByUUID(rec); err != nil {
			return result, err
		}
		result.SuccessCount++
	}
	return result, nil
}

// ReplayAll replays every record currently in the queue, in order.
func (d *DLQ) ReplayAll(ctx context.Context, publish PublishFunc) (BatchResult, error) {
	d.mu.Lock()
	records, err := d.readAll()
	d.mu.Unlock()
	if err != nil {
		return BatchResult{}, err
	}
	return d.ReplayBatch(ctx, len(records), publish)
}

func (d *DLQ) replayRecord(ctx context.Context, rec Record, publish PublishFunc) error {
	if rec.Header == nil || rec.Header.MessageClass == "" {
		return apperrors.New(apperrors.CodeUnknownMessageClass, "dlq record has no resolvable message class", nil)
	}
	return publish(ctx, rec.Header.MessageClass, []byte(rec.Payload))
}

// removeByUUID removes the first stored record carrying rec's header UUID,
// tolerating concurrent mutation between the replay read and the removal.
func (d *DLQ) removeByUUID(rec Record) error {
	if rec.Header == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return err
	}
	for i, r := range records {
		if r.Header != nil && r.Header.UUID == rec.Header.UUID {
			return d.removeAt(records, i)
		}
	}
	return nil
}
