package region_test

import (
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"image-diff-finder/internal/region"

	"github.com/google/go-cmp/cmp"
)

func TestMerge(t *testing.T) {
	type in struct {
		regions           []region.Region
		distanceThreshold float64
		margin            float64
		canvasWidth       int
		canvasHeight      int
	}

	tests := []struct {
		name string
		in   in
		want []region.Region
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{},
				250,
				100,
				1000,
				1000,
			},
			[]region.Region{},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{
					{X: 50, Y: 50, Width: 10, Height: 10},
				},
				250,
				20,
				500,
				500,
			},
			[]region.Region{
				{X: 30, Y: 30, Width: 50, Height: 50},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{
					{X: 10, Y: 10, Width: 10, Height: 10},
					{X: 20, Y: 20, Width: 10, Height: 10},
				},
				250,
				0,
				1000,
				1000,
			},
			[]region.Region{
				{X: 10, Y: 10, Width: 20, Height: 20},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{
					{X: 10, Y: 10, Width: 10, Height: 10},
					{X: 20, Y: 20, Width: 10, Height: 10},
				},
				1,
				0,
				1000,
				1000,
			},
			[]region.Region{
				{X: 10, Y: 10, Width: 10, Height: 10},
				{X: 20, Y: 20, Width: 10, Height: 10},
			},
		},
		{
			// Margin pushes past the canvas corner; clamped to [0, canvas].
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{
					{X: 5, Y: 5, Width: 10, Height: 10},
				},
				250,
				50,
				100,
				100,
			},
			[]region.Region{
				{X: 0, Y: 0, Width: 65, Height: 65},
			},
		},
		{
			// Fractional candidates are truncated after consolidation.
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]region.Region{
					{X: 10.6, Y: 10.6, Width: 10.8, Height: 10.8},
				},
				250,
				0,
				1000,
				1000,
			},
			[]region.Region{
				{X: 10, Y: 10, Width: 10, Height: 10},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := region.Merge(tt.in.regions, tt.in.distanceThreshold, tt.in.margin, tt.in.canvasWidth, tt.in.canvasHeight)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_SeedOnlyClustering(t *testing.T) {
	// A chain where B is close to both A and C, but A and C are far apart.
	// Clustering measures against the seed only, so C does not ride along
	// through B.
	regions := []region.Region{
		{X: 0, Y: 0, Width: 10, Height: 10},   // A, center (5, 5)
		{X: 90, Y: 0, Width: 10, Height: 10},  // B, center (95, 5)
		{X: 180, Y: 0, Width: 10, Height: 10}, // C, center (185, 5)
	}

	got := region.Merge(regions, 100, 0, 1000, 1000)

	want := []region.Region{
		{X: 0, Y: 0, Width: 100, Height: 10},
		{X: 180, Y: 0, Width: 10, Height: 10},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_OutputIsFixedPoint(t *testing.T) {
	regions := []region.Region{
		{X: 10, Y: 10, Width: 30, Height: 30},
		{X: 60, Y: 40, Width: 20, Height: 20},
		{X: 700, Y: 700, Width: 50, Height: 50},
		{X: 720, Y: 680, Width: 10, Height: 40},
	}

	first := region.Merge(regions, 250, 0, 1000, 1000)
	second := region.Merge(first, 0, 0, 1000, 1000)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Merge() output is not a fixed point (-first +second):\n%s", diff)
	}
}

func TestMerge_EveryInputIsCovered(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	regions := make([]region.Region, 50)
	for i := range regions {
		regions[i] = region.Region{
			X:      rng.Float64() * 900,
			Y:      rng.Float64() * 900,
			Width:  1 + rng.Float64()*99,
			Height: 1 + rng.Float64()*99,
		}
	}

	merged := region.Merge(regions, 150, 0, 1000, 1000)

	for i, r := range regions {
		contained := 0
		for _, m := range merged {
			// Truncation to whole pixels can shave up to two pixels off
			// the far edge of a cluster's bounding box.
			if r.X >= m.X-1 && r.Y >= m.Y-1 &&
				r.X+r.Width <= m.X+m.Width+2 && r.Y+r.Height <= m.Y+m.Height+2 {
				contained++
			}
		}
		if contained == 0 {
			t.Errorf("input region %d (%+v) is not contained in any output", i, r)
		}
	}
}

func TestMerge_OutputStaysWithinCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	regions := make([]region.Region, 30)
	for i := range regions {
		regions[i] = region.Region{
			X:      rng.Float64() * 640,
			Y:      rng.Float64() * 480,
			Width:  1 + rng.Float64()*200,
			Height: 1 + rng.Float64()*200,
		}
	}

	const canvasWidth, canvasHeight = 640, 480

	merged := region.Merge(regions, 100, 120, canvasWidth, canvasHeight)

	for i, m := range merged {
		if m.X < 0 || m.Y < 0 {
			t.Errorf("output region %d has negative origin: %+v", i, m)
		}
		if m.X+m.Width > canvasWidth || m.Y+m.Height > canvasHeight {
			t.Errorf("output region %d exceeds canvas: %+v", i, m)
		}
	}
}

func BenchmarkMerge(b *testing.B) {
	rng := rand.New(rand.NewSource(3))

	regions := make([]region.Region, 500)
	for i := range regions {
		regions[i] = region.Region{
			X:      rng.Float64() * 3800,
			Y:      rng.Float64() * 2100,
			Width:  1 + rng.Float64()*100,
			Height: 1 + rng.Float64()*100,
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		region.Merge(regions, 250, 100, 3840, 2160)
	}
}
