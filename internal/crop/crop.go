package crop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"image-diff-finder/internal/region"
	"image-diff-finder/internal/storage"

	"golang.org/x/xerrors"
)

func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

type Cropper struct {
	storage storage.Storage
}

func NewCropper(s storage.Storage) *Cropper {
	return &Cropper{
		storage: s,
	}
}

// SaveRegions crops every consolidated region out of the source image and
// stores one PNG per region under keyPrefix, named <stem>_diff<N>.png where N
// is the 1-based region index in emission order. Returned URLs follow the
// same order.
func (c *Cropper) SaveRegions(ctx context.Context, img image.Image, regions []region.Region, sourcePath string, keyPrefix string) ([]string, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))

	urls := make([]string, 0, len(regions))
	for i, r := range regions {
		var buffer bytes.Buffer
		if err := png.Encode(&buffer, Crop(img, r)); err != nil {
			return nil, xerrors.Errorf("failed to encode cropped region %d: %w", i+1, err)
		}

		key := fmt.Sprintf("%s/%s_diff%d.png", keyPrefix, stem, i+1)
		url, err := c.storage.Put(ctx, key, buffer.Bytes())
		if err != nil {
			return nil, xerrors.Errorf("failed to save cropped region %d: %w", i+1, err)
		}
		urls = append(urls, url)
	}

	return urls, nil
}

// Crop extracts the region's bounding box from the image. Images whose codec
// supports SubImage share pixels with the original; everything else is copied.
func Crop(img image.Image, r region.Region) image.Image {
	rect := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
