// Package storage uploads artifacts to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/metrics"
)

// Uploads beyond this size indicate a broken pipeline, not a bigger guide.
const maxUploadBytes = 1 << 30

// Uploader persists byte payloads under a bucket/key on an S3-compatible
// endpoint. Provider errors propagate unchanged.
type Uploader struct {
	client *s3.Client
}

// New builds an Uploader for the given endpoint and region. Credentials come
// from the conventional AWS environment variables.
func New(ctx context.Context, endpoint, region string) (*Uploader, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("AWS credentials not found in environment")
	}
	if !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("storage endpoint must use HTTPS")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Uploader{client: client}, nil
}

// Put uploads body under bucket/key with the given content type, tagging the
// object with upload metadata.
func (u *Uploader) Put(ctx context.Context, bucket, key, contentType string, body []byte) error {
	logger := log.WithComponentFromContext(ctx, "storage")

	if len(body) > maxUploadBytes {
		return fmt.Errorf("payload of %d bytes exceeds upload sanity limit", len(body))
	}

	logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Str("content_type", contentType).
		Int("bytes", len(body)).
		Msg("uploading to object storage")

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"uploaded-by":      "m3ufilter",
			"upload-timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		},
	})
	if err != nil {
		metrics.RecordUpload("failure")
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}

	metrics.RecordUpload("success")
	logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Msg("upload completed")
	return nil
}
