// Package dlq implements the dead-letter queue: an append-only,
// line-delimited JSON log of failed publishes and handler failures, with
// inspection, filtering, statistics, and replay.
package dlq

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"sync"
	"time"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
)

// DLQ is a single-file, append-only dead-letter queue. A mutex owned by
// each DLQ value guards every read and write to the backing file; two DLQ
// values opened on the same path do not share that lock.
type DLQ struct {
	mu   sync.Mutex
	path string
}

// New opens (creating if needed) the DLQ file at path.
func New(path string) (*DLQ, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeDLQWrite, "failed to open dlq file", err)
	}
	f.Close()
	return &DLQ{path: path}, nil
}

// Enqueue appends rec, filling in Timestamp and PayloadFormat when unset,
// and returns the stored record. The write is synced before returning, so a
// successful Enqueue is durable.
func (d *DLQ) Enqueue(rec Record) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.PayloadFormat == "" {
		rec.PayloadFormat = "json"
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, apperrors.New(apperrors.CodeDLQWrite, "failed to marshal dlq record", err)
	}

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Record{}, apperrors.New(apperrors.CodeDLQWrite, "failed to open dlq file for append", err)
	}
	defer f.Close()

	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return Record{}, apperrors.New(apperrors.CodeDLQWrite, "failed to append dlq record", err)
	}
	if err := f.Sync(); err != nil {
		return Record{}, apperrors.New(apperrors.CodeDLQWrite, "failed to sync dlq file", err)
	}

	return rec, nil
}

// readAll reads every well-formed line in the file. Malformed lines are
// skipped and logged, never fatal to the caller.
func (d *DLQ) readAll() ([]Record, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.CodeInternal, "failed to open dlq file", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.L().Warn("dlq line skipped: malformed json", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.New(apperrors.CodeInternal, "failed to scan dlq file", err)
	}
	return records, nil
}

func (d *DLQ) writeAll(records []Record) error {
	f, err := os.Create(d.path)
	if err != nil {
		return apperrors.New(apperrors.CodeDLQWrite, "failed to truncate dlq file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return apperrors.New(apperrors.CodeDLQWrite, "failed to marshal dlq record", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return apperrors.New(apperrors.CodeDLQWrite, "failed to rewrite dlq file", err)
		}
	}
	if err := w.Flush(); err != nil {
		return apperrors.New(apperrors.CodeDLQWrite, "failed to flush dlq file", err)
	}
	return f.Sync()
}

// Size returns the number of records currently stored.
func (d *DLQ) Size() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Peek returns the oldest record without removing it.
func (d *DLQ) Peek() (Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// Dequeue removes and returns the oldest record.
func (d *DLQ) Dequeue() (Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}

	head := records[0]
	if err := d.writeAll(records[1:]); err != nil {
		return Record{}, false, err
	}
	return head, true, nil
}

// removeAt removes the record at index i and rewrites the file. Callers
// must hold d.mu.
func (d *DLQ) removeAt(records []Record, i int) error {
	remaining := append(records[:i:i], records[i+1:]...)
	return d.writeAll(remaining)
}

// Clear truncates the DLQ file.
func (d *DLQ) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeAll(nil)
}

// FilterByClass returns all records whose header message class matches name.
func (d *DLQ) FilterByClass(name string) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range records {
		if rec.Header != nil && rec.Header.MessageClass == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FilterByErrorPattern returns all records whose Error field matches pattern.
func (d *DLQ) FilterByErrorPattern(pattern string) ([]Record, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "invalid error pattern", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range records {
		if re.MatchString(rec.Error) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ExportRange returns records whose Timestamp falls within [from, to].
func (d *DLQ) ExportRange(from, to time.Time) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range records {
		if !rec.Timestamp.Before(from) && !rec.Timestamp.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Inspect returns up to limit records from the head of the queue without
// removing them. limit <= 0 returns every record.
func (d *DLQ) Inspect(limit int) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(records) {
		return records[:limit], nil
	}
	return records, nil
}

// Statistics summarizes the current contents of the DLQ.
func (d *DLQ) Statistics() (Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.readAll()
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		ByClass: make(map[string]int),
		ByError: make(map[string]int),
	}
	for _, rec := range records {
		stats.Total++
		if rec.Header != nil {
			stats.ByClass[rec.Header.MessageClass]++
		}
		stats.ByError[rec.Error]++
	}
	return stats, nil
}
