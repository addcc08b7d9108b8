package engine

import (
	"context"
)

// Detector is the interface every prompt detector must implement.
type Detector interface {
	// Name returns the detector's unique identifier (e.g., "secret_patterns").
	Name() string

	// Category returns the kind of content this detector covers.
	Category() Category

	// Warmup prepares expensive resources. It is called once before the
	// detector serves traffic and must be safe to call again.
	Warmup(ctx context.Context) error

	// Detect scans text and returns findings in emission order. It never
	// mutates its input, returns no findings for empty text, and returns
	// unexpected internal failures as errors.
	Detect(ctx context.Context, text string) ([]Finding, error)
}
