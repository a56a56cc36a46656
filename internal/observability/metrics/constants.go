// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// ShutdownTimeout bounds the graceful shutdown of the metrics HTTP server.
const ShutdownTimeout = 5 * time.Second

// Label value constants used for metric labels.
const (
	// LabelKept marks a voice segment that was written.
	LabelKept = "kept"
	// LabelDiscarded marks a voice segment shorter than the minimum.
	LabelDiscarded = "discarded"
	// LabelSuccess marks a successful operation.
	LabelSuccess = "success"
	// LabelError marks a failed operation.
	LabelError = "error"
	// LabelAbandoned marks an encode job cut off by the shutdown deadline.
	LabelAbandoned = "abandoned"
)

// PercentageFactor converts a ratio to a percentage.
const PercentageFactor = 100.0
