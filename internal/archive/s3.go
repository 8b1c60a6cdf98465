// Package archive stores generated outage reports in S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config holds the bucket location and optional static credentials. Without
// credentials the default AWS chain is used.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the subset of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads report files under <prefix>/<company id>/<name>.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 builds an S3 client from cfg.
func NewS3(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// New wraps an existing client.
func New(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *S3Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("op", "archive.S3Archive")),
	}
}

// Key returns the object key of a company report.
func (a *S3Archive) Key(companyID uuid.UUID, name string) string {
	return path.Join(a.prefix, companyID.String(), name)
}

// Store uploads a CSV report and returns its object key.
func (a *S3Archive) Store(ctx context.Context, companyID uuid.UUID, name string, body []byte) (string, error) {
	key := a.Key(companyID, name)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Info("report archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return key, nil
}
