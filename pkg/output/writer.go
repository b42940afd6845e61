package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer defines the interface for migration run output.
//
// All methods must be safe for concurrent use.
type Writer interface {
	// WriteBucket emits a bucket processing record.
	WriteBucket(rec BucketRecord) error

	// WriteTransfer emits a completed object copy record.
	WriteTransfer(rec TransferRecord) error

	// WriteSkip emits a skipped-object record.
	WriteSkip(rec SkipRecord) error

	// WriteError emits an error record.
	WriteError(rec ErrorRecord) error

	// WriteSummary emits the final run summary.
	WriteSummary(rec SummaryRecord) error

	// Close flushes and releases resources. After Close, all Write
	// methods return ErrWriterClosed.
	Close() error
}

// JSONLWriter writes records as JSON Lines to an io.Writer.
//
// Each record is written as a single line of JSON followed by a newline.
// The writer serializes access so concurrent writers cannot interleave
// lines.
type JSONLWriter struct {
	mu     sync.Mutex
	w      io.Writer
	jobID  string
	closed bool

	// now is overridable for tests.
	now func() time.Time
}

// NewJSONLWriter creates a JSONL writer targeting w. The jobID is stamped
// on every record for correlation.
func NewJSONLWriter(w io.Writer, jobID string) *JSONLWriter {
	return &JSONLWriter{
		w:     w,
		jobID: jobID,
		now:   time.Now,
	}
}

// WriteBucket implements Writer.
func (jw *JSONLWriter) WriteBucket(rec BucketRecord) error {
	return jw.writeRecord(TypeBucket, rec)
}

// WriteTransfer implements Writer.
func (jw *JSONLWriter) WriteTransfer(rec TransferRecord) error {
	return jw.writeRecord(TypeTransfer, rec)
}

// WriteSkip implements Writer.
func (jw *JSONLWriter) WriteSkip(rec SkipRecord) error {
	return jw.writeRecord(TypeSkip, rec)
}

// WriteError implements Writer.
func (jw *JSONLWriter) WriteError(rec ErrorRecord) error {
	return jw.writeRecord(TypeError, rec)
}

// WriteSummary implements Writer.
func (jw *JSONLWriter) WriteSummary(rec SummaryRecord) error {
	return jw.writeRecord(TypeSummary, rec)
}

// Close implements Writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return nil
	}
	jw.closed = true

	if c, ok := jw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (jw *JSONLWriter) writeRecord(recType string, data interface{}) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	rec := Record{
		Type:  recType,
		TS:    jw.now().UTC(),
		JobID: jw.jobID,
		Data:  raw,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	line = append(line, '\n')

	if err := jw.writeAll(line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes the full buffer, retrying on short writes.
func (jw *JSONLWriter) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := jw.w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Discard is a Writer that drops all records. Useful when output is not
// requested and callers want an unconditional writer.
type Discard struct{}

// NewDiscard returns a no-op Writer.
func NewDiscard() Discard { return Discard{} }

func (Discard) WriteBucket(BucketRecord) error     { return nil }
func (Discard) WriteTransfer(TransferRecord) error { return nil }
func (Discard) WriteSkip(SkipRecord) error         { return nil }
func (Discard) WriteError(ErrorRecord) error       { return nil }
func (Discard) WriteSummary(SummaryRecord) error   { return nil }
func (Discard) Close() error                       { return nil }

var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = Discard{}
)
