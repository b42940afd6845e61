// Package output provides JSONL output for migration runs.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently, so a failed
// run still yields a usable partial log.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: supamigrate.<type>.v<version>
const (
	// TypeBucket identifies bucket processing records.
	TypeBucket = "supamigrate.bucket.v1"

	// TypeTransfer identifies per-object transfer records.
	TypeTransfer = "supamigrate.transfer.v1"

	// TypeSkip identifies skipped-object records.
	TypeSkip = "supamigrate.skip.v1"

	// TypeError identifies error records.
	TypeError = "supamigrate.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "supamigrate.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific payload
// in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "supamigrate.transfer.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this migration run.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// BucketRecord is the data payload for bucket processing.
type BucketRecord struct {
	// Name is the bucket name.
	Name string `json:"name"`

	// Public reports the bucket's visibility flag.
	Public bool `json:"public"`

	// Created is true when the bucket was created in the target,
	// false when it already existed there.
	Created bool `json:"created"`
}

// TransferRecord is the data payload for a completed object copy.
type TransferRecord struct {
	// Bucket is the bucket name on both sides.
	Bucket string `json:"bucket"`

	// Key is the object path within the bucket.
	Key string `json:"key"`

	// Bytes is the number of bytes copied.
	Bytes int64 `json:"bytes"`
}

// SkipRecord is the data payload for an intentionally skipped object.
type SkipRecord struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`

	// Reason is a machine-readable skip reason (e.g., "on_exists.skip",
	// "dry_run").
	Reason string `json:"reason"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the run, allowing
// partial migrations when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Op is the operation that failed ("create_bucket", "download", "upload").
	Op string `json:"op,omitempty"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Bucket is the bucket related to this error, if applicable.
	Bucket string `json:"bucket,omitempty"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeBucketExists indicates the target bucket already exists.
	ErrCodeBucketExists = "BUCKET_EXISTS"

	// ErrCodeObjectExists indicates the target object already exists.
	ErrCodeObjectExists = "OBJECT_EXISTS"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNetwork indicates the backend was unreachable or unavailable.
	ErrCodeNetwork = "NETWORK"

	// ErrCodeIO indicates a local filesystem failure (scratch files).
	ErrCodeIO = "IO"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// BucketsListed is the number of source buckets seen.
	BucketsListed int64 `json:"buckets_listed"`

	// BucketsCreated is the number of buckets created in the target.
	BucketsCreated int64 `json:"buckets_created"`

	// ObjectsListed is the number of source objects seen.
	ObjectsListed int64 `json:"objects_listed"`

	// ObjectsTransferred is the number of objects copied successfully.
	ObjectsTransferred int64 `json:"objects_transferred"`

	// ObjectsSkipped is the number of objects intentionally skipped.
	ObjectsSkipped int64 `json:"objects_skipped"`

	// BytesTransferred is the cumulative size of copied objects in bytes.
	BytesTransferred int64 `json:"bytes_transferred"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
