package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination writes JSONL data to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
	now    func() time.Time
}

// S3Config selects the bucket and object for an S3Destination.
type S3Config struct {
	Bucket string
	// Key names the object. A "{date}" placeholder is replaced by the UTC
	// date of the upload, giving one object per day.
	Key      string
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)
}

// NewS3Destination creates an S3 destination from the default AWS
// credential chain.
func NewS3Destination(ctx context.Context, c S3Config) (*S3Destination, error) {
	if c.Bucket == "" || c.Key == "" {
		return nil, fmt.Errorf("s3 destination: bucket and key are required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if c.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3opts...)
	return &S3Destination{
		client: client,
		bucket: c.Bucket,
		key:    c.Key,
		now:    time.Now,
	}, nil
}

// ObjectKey returns the key the next Write uploads to.
func (d *S3Destination) ObjectKey() string {
	return strings.ReplaceAll(d.key, "{date}", d.now().UTC().Format(time.DateOnly))
}

// Write uploads data to S3 under ObjectKey.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	contentType := "application/x-ndjson"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.ObjectKey()),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
