package detect

import (
	"context"

	"image-diff-finder/internal/region"
)

// Detector locates visual differences between two images of equal dimensions
// and returns candidate regions enclosing them. An empty slice means no
// differences were found; it is not an error.
type Detector interface {
	Detect(ctx context.Context, baseline []byte, target []byte, width int, height int) ([]region.Region, error)
}
