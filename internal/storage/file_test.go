package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"image-diff-finder/internal/storage"
)

func TestFileStoragePutGet(t *testing.T) {
	ctx := context.Background()

	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(ctx, "Diff/abc/20240101000000/image_diff1.png", []byte("fake"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fake" {
		t.Errorf("Get() = %q, want %q", got, "fake")
	}
}

func TestFileStoragePutCreatesNestedDirectories(t *testing.T) {
	ctx := context.Background()
	directory := t.TempDir()

	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(ctx, "Diff/nested/deep/regions.json", []byte("[]"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(directory, "Diff", "nested", "deep", "regions.json")); err != nil {
		t.Errorf("expected artifact on disk at nested path: %v", err)
	}
	if url == "" {
		t.Errorf("Put() returned empty URL")
	}
}
