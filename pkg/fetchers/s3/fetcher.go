// Package s3 provides a querycache.FetchFn backed by a GetObject call
// against S3 or an S3-compatible store.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/resyncio/querysync/pkg/querycache"
)

// Config configures the S3 client backing Fetcher.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string // non-empty for S3-compatible stores (MinIO, LocalStack)
	ForcePathStyle bool
}

// Fetcher fetches whole objects from a single bucket.
type Fetcher struct {
	client *awss3.Client
	bucket string
}

// Open builds an S3 client from the ambient AWS config chain (env vars,
// shared credentials file, IAM role) and region/endpoint overrides.
func Open(ctx context.Context, cfg Config) (*Fetcher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3 fetcher: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Fetcher{client: client, bucket: cfg.Bucket}, nil
}

// Request is the FetchContext.Meta value a Fetcher expects: the object key
// to fetch.
type Request struct {
	ObjectKey string
}

// Fetch implements querycache.FetchFn, returning the object's body as []byte.
func (f *Fetcher) Fetch(ctx context.Context, fc querycache.FetchContext) (any, error) {
	req, ok := fc.Meta.(Request)
	if !ok {
		return nil, fmt.Errorf("s3 fetcher: FetchContext.Meta must be an s3.Request for key %s", fc.Key)
	}

	out, err := f.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: &f.bucket,
		Key:    &req.ObjectKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 fetcher: get %s/%s: %w", f.bucket, req.ObjectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 fetcher: read body %s/%s: %w", f.bucket, req.ObjectKey, err)
	}
	return data, nil
}
