package region

import "math"

// Region is an axis-aligned bounding box in pixel coordinates. Candidates
// coming back from a detector may carry fractional coordinates; consolidated
// regions produced by Merge are truncated to whole pixels.
type Region struct {
	X      float64 `json:"position_x"`
	Y      float64 `json:"position_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Region) centerDistance(other Region) float64 {
	dx := (r.X + r.Width/2) - (other.X + other.Width/2)
	dy := (r.Y + r.Height/2) - (other.Y + other.Height/2)
	return math.Sqrt(dx*dx + dy*dy)
}

// Merge consolidates candidate regions into padded bounding boxes clamped to
// the canvas. Each remaining candidate seeds a cluster and absorbs every
// not-yet-claimed candidate whose center lies within distanceThreshold of the
// seed's center. Distance is measured against the seed only, not transitively
// against absorbed members; downstream thresholds are tuned for that behavior.
//
// Every input belongs to exactly one output cluster. Output order follows the
// order in which seeds occur in the input.
func Merge(regions []Region, distanceThreshold float64, margin float64, canvasWidth int, canvasHeight int) []Region {
	merged := make([]Region, 0, len(regions))
	used := make([]bool, len(regions))

	for i := 0; i < len(regions); i++ {
		if used[i] {
			continue
		}
		used[i] = true
		seed := regions[i]

		minX := seed.X
		minY := seed.Y
		maxX := seed.X + seed.Width
		maxY := seed.Y + seed.Height

		for j := i + 1; j < len(regions); j++ {
			if used[j] {
				continue
			}
			if seed.centerDistance(regions[j]) > distanceThreshold {
				continue
			}
			used[j] = true

			other := regions[j]
			if other.X < minX {
				minX = other.X
			}
			if other.Y < minY {
				minY = other.Y
			}
			if other.X+other.Width > maxX {
				maxX = other.X + other.Width
			}
			if other.Y+other.Height > maxY {
				maxY = other.Y + other.Height
			}
		}

		minX -= margin
		minY -= margin
		maxX += margin
		maxY += margin

		minX = math.Max(minX, 0)
		minY = math.Max(minY, 0)
		maxX = math.Min(maxX, float64(canvasWidth))
		maxY = math.Min(maxY, float64(canvasHeight))

		merged = append(merged, Region{
			X:      math.Trunc(minX),
			Y:      math.Trunc(minY),
			Width:  math.Trunc(maxX - minX),
			Height: math.Trunc(maxY - minY),
		})
	}

	return merged
}
