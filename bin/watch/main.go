package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"image-diff-finder/internal/detect"
	"image-diff-finder/internal/diff"
	"image-diff-finder/internal/storage"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func main() {
	_ = godotenv.Load()

	var schedule string
	var directory string
	var storageBackend string
	var model string
	var threshold float64
	var margin float64
	flag.StringVar(&schedule, "schedule", envOrDefaultValue("SCHEDULE", "@hourly"), "Cron schedule for re-running the comparison")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "."), "Output directory for crop artifacts")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&model, "model", envOrDefaultValue("OPENAI_MODEL", ""), "Vision model identifier")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("DISTANCE_THRESHOLD", float64(diff.DefaultDistanceThreshold)), "Center distance threshold for merging candidate regions")
	flag.Float64Var(&margin, "margin", envOrDefaultValue("MARGIN", float64(diff.DefaultMargin)), "Margin in pixels around consolidated regions")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("baseline, target not specified")
	}

	baseline := args[0]
	target := args[1]

	ctx := context.Background()

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("GO_LOG"); ok {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			log.Fatalf("failed to parse log level: %v", err)
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	detector, err := detect.NewOpenAIDetector(ctx, detect.OpenAIConfig{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  model,
	})
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}

	var s storage.Storage
	switch storageBackend {
	case "file":
		s, err = storage.NewFileStorage(ctx, storage.FileConfig{
			Directory: directory,
		})
		if err != nil {
			log.Fatalf("failed to create file storage backend: %v", err)
		}
	case "s3":
		s, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket: os.Getenv("S3_BUCKET"),
		})
		if err != nil {
			log.Fatalf("failed to create S3 storage backend: %v", err)
		}
	default:
		log.Fatalf("unknown storage backend: %s", storageBackend)
	}

	finder := diff.NewFinder(detector, s)
	finder.DistanceThreshold = threshold
	finder.Margin = margin

	run := func() {
		output, err := finder.Run(ctx, baseline, target)
		if err != nil {
			slog.Error("comparison failed", "error", err)
			return
		}
		if len(output.Regions) == 0 {
			slog.Info("no differences found", "baseline", baseline, "target", target)
			return
		}
		slog.Info("differences found",
			"baseline", baseline,
			"target", target,
			"regions", len(output.Regions),
			"regionsURL", output.RegionsURL,
		)
	}

	// Artifact keys embed a per-run timestamp, so repeated runs over the
	// same pair do not clobber each other.
	run()

	c := cron.New()
	if _, err := c.AddFunc(schedule, run); err != nil {
		log.Fatalf("invalid schedule %q: %v", schedule, err)
	}
	c.Run()
}
