package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // SASHAY_DATABASE_URL (required)
	HTTPAddr    string // SASHAY_HTTP_ADDR (default ":8080")
	NATSURL     string // SASHAY_NATS_URL (optional, empty = no event mirror)

	// Archive settings
	ArchiveInterval   time.Duration // SASHAY_ARCHIVE_INTERVAL (default 5m; 0 = disabled)
	ArchiveS3Bucket   string        // SASHAY_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // SASHAY_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // SASHAY_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // SASHAY_ARCHIVE_S3_KEY (default "sashay/events.jsonl")
	ArchiveFile       string        // SASHAY_ARCHIVE_FILE (enables local file when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("SASHAY_DATABASE_URL"),
		HTTPAddr:          envOrDefault("SASHAY_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("SASHAY_NATS_URL"),
		ArchiveS3Bucket:   os.Getenv("SASHAY_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("SASHAY_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("SASHAY_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("SASHAY_ARCHIVE_S3_KEY", "sashay/events.jsonl"),
		ArchiveFile:       os.Getenv("SASHAY_ARCHIVE_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("SASHAY_DATABASE_URL is required")
	}

	intervalStr := envOrDefault("SASHAY_ARCHIVE_INTERVAL", "5m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("SASHAY_ARCHIVE_INTERVAL: %w", err)
		}
		c.ArchiveInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
