package storage

import (
	"bytes"
	"context"
	"fmt"

	appconfig "barn-economy-backend/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the write side of an S3-compatible bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client for an S3-compatible endpoint (R2, Spaces, MinIO).
// It returns nil when no bucket is configured.
func NewS3Store(ctx context.Context, cfg *appconfig.Config) (*S3Store, error) {
	a := cfg.Archive
	if a.Bucket == "" {
		return nil, nil
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(a.Region),
	}
	if a.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: a.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}
