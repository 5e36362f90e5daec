package ingest

import "errors"

var (
	// ErrStoreRequired is returned when an index store is not provided.
	ErrStoreRequired = errors.New("index store required")

	// ErrUploaderRequired is returned when an uploader is not provided.
	ErrUploaderRequired = errors.New("uploader required")
)

// ReasonCancelled marks documents that were never processed because the
// run's context was cancelled.
const ReasonCancelled = "run cancelled"
