package diff

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"image-diff-finder/internal/crop"
	"image-diff-finder/internal/detect"
	"image-diff-finder/internal/region"
	"image-diff-finder/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	DefaultDistanceThreshold = 250
	DefaultMargin            = 100
)

// Finder runs one comparison end to end: detect candidate differences,
// consolidate them into reviewable regions, crop each region out of both
// source images and store the artifacts.
type Finder struct {
	Detector          detect.Detector
	Storage           storage.Storage
	DistanceThreshold float64
	Margin            float64
}

func NewFinder(detector detect.Detector, s storage.Storage) *Finder {
	return &Finder{
		Detector:          detector,
		Storage:           s,
		DistanceThreshold: DefaultDistanceThreshold,
		Margin:            DefaultMargin,
	}
}

type Output struct {
	Regions      []region.Region `json:"regions"`
	BaselineURLs []string        `json:"baselineURLs,omitempty"`
	TargetURLs   []string        `json:"targetURLs,omitempty"`
	RegionsURL   string          `json:"regionsURL,omitempty"`
}

// Run compares two image files of equal dimensions. An Output with zero
// regions means no differences were found; no artifacts are written in that
// case. Any failure stops the run before artifacts are produced.
func (f *Finder) Run(ctx context.Context, baselinePath string, targetPath string) (*Output, error) {
	baselineData, err := os.ReadFile(baselinePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read baseline image: %w", err)
	}
	targetData, err := os.ReadFile(targetPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read target image: %w", err)
	}

	baselineImage, err := crop.Decode(baselineData)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode baseline image: %w", err)
	}

	// The two images are pre-validated to share dimensions; the canvas is
	// read once from the baseline.
	bounds := baselineImage.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Step 1: Locate candidate difference regions
	candidates, err := f.Detector.Detect(ctx, baselineData, targetData, width, height)
	if err != nil {
		return nil, xerrors.Errorf("failed to detect differences: %w", err)
	}

	if len(candidates) == 0 {
		return &Output{Regions: []region.Region{}}, nil
	}

	// Step 2: Consolidate candidates into padded, clamped regions
	regions := region.Merge(candidates, f.DistanceThreshold, f.Margin, width, height)

	targetImage, err := crop.Decode(targetData)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode target image: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")

	h := sha256.New()
	h.Write([]byte(baselinePath + targetPath))
	hash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	keyPrefix := fmt.Sprintf("Diff/%s/%s", hash, timestamp)

	// Step 3: Crop each region out of both sources and store artifacts
	cropper := crop.NewCropper(f.Storage)
	output := &Output{Regions: regions}
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			urls, err := cropper.SaveRegions(ctx, baselineImage, regions, baselinePath, keyPrefix)
			if err != nil {
				return xerrors.Errorf("failed to save baseline crops: %w", err)
			}
			output.BaselineURLs = urls
			return nil
		})

		eg.Go(func() error {
			urls, err := cropper.SaveRegions(ctx, targetImage, regions, targetPath, keyPrefix)
			if err != nil {
				return xerrors.Errorf("failed to save target crops: %w", err)
			}
			output.TargetURLs = urls
			return nil
		})

		eg.Go(func() error {
			dump, err := json.MarshalIndent(regions, "", "  ")
			if err != nil {
				return xerrors.Errorf("failed to marshal regions: %w", err)
			}
			url, err := f.Storage.Put(ctx, fmt.Sprintf("%s/regions.json", keyPrefix), dump)
			if err != nil {
				return xerrors.Errorf("failed to save region dump: %w", err)
			}
			output.RegionsURL = url
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return output, nil
}
