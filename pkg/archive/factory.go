package archive

import (
	"context"
	"fmt"
)

// Kind selects a BlobStore backend.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
)

// Config describes where records are archived.
type Config struct {
	Kind     Kind
	Dir      string // local
	Bucket   string // s3, gcs
	Region   string // s3
	Endpoint string // s3
	Prefix   string // s3, gcs
}

// Open builds the BlobStore named by cfg.Kind. An empty kind means local.
func Open(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Kind {
	case KindLocal, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "archive"
		}
		return NewLocalStore(dir)
	case KindS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case KindGCS:
		return NewGCSStore(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unsupported archive kind: %s", cfg.Kind)
	}
}
