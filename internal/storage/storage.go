package storage

import (
	"context"
)

// Storage persists comparison artifacts (cropped regions, region dumps).
type Storage interface {
	// Put stores data under the given key and returns the artifact URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from an artifact URL returned by Put
	Get(ctx context.Context, url string) ([]byte, error)
}
