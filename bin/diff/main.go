package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"image-diff-finder/internal/detect"
	"image-diff-finder/internal/diff"
	"image-diff-finder/internal/retry"
	"image-diff-finder/internal/storage"

	"github.com/joho/godotenv"
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

	var directory string
	var storageBackend string
	var model string
	var threshold float64
	var margin float64
	var timeout time.Duration
	var maxRetries uint
	var retryOn string
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "."), "Output directory for crop artifacts")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&model, "model", envOrDefaultValue("OPENAI_MODEL", ""), "Vision model identifier")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("DISTANCE_THRESHOLD", float64(diff.DefaultDistanceThreshold)), "Center distance threshold for merging candidate regions")
	flag.Float64Var(&margin, "margin", envOrDefaultValue("MARGIN", float64(diff.DefaultMargin)), "Margin in pixels around consolidated regions")
	flag.DurationVar(&timeout, "timeout", envOrDefaultValue("DETECTION_TIMEOUT", 120*time.Second), "Whole-request timeout for the detection call")
	flag.UintVar(&maxRetries, "max-retries", envOrDefaultValue("MAX_RETRIES", uint(3)), "Retry budget for the detection call")
	flag.StringVar(&retryOn, "retry-on", envOrDefaultValue("RETRY_ON", ""), "Comma-separated retry conditions (5xx, gateway-error, connect-failure, rate-limited, or status codes)")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("baseline, target not specified")
	}

	baseline := args[0]
	target := args[1]

	ctx := context.Background()

	detectorConfig := detect.OpenAIConfig{
		APIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:         model,
		Timeout:       timeout,
		RetryStrategy: retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, maxRetries, nil),
	}
	if retryOn != "" {
		on, err := retry.NewRetryOnFromString(retryOn)
		if err != nil {
			log.Fatalf("invalid -retry-on: %v", err)
		}
		detectorConfig.RetryOn = on
	}

	detector, err := detect.NewOpenAIDetector(ctx, detectorConfig)
	if err != nil {
		if errors.Is(err, detect.MissingAPIKeyError) {
			log.Fatalf("OPENAI_API_KEY is not set")
		}
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

	output, err := finder.Run(ctx, baseline, target)
	if err != nil {
		log.Fatalf("failed to find differences: %v", err)
	}

	if len(output.Regions) == 0 {
		fmt.Println("No differences found.")
		return
	}

	j, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal result: %v", err)
	}
	fmt.Println(string(j))
}
