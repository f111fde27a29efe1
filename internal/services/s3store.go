package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"eye-of-horus/internal/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ternarybob/arbor"
)

// maxPresignExpiry is the longest lifetime SigV4 allows for a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

// S3Store keeps transcripts in a single bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  arbor.ILogger
}

func NewS3Store(ctx context.Context, cfg *common.S3Config, logger arbor.ILogger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return common.NewStorageError(fmt.Sprintf("Failed to upload %s: %v", key, err)).WithCause(err)
	}

	s.logger.Info().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).Msg("Object uploaded")
	return nil
}

// Get reads an object. An empty bucket means the configured one.
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" {
		bucket = s.bucket
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Failed to read s3://%s/%s: %v", bucket, key, err)).WithCause(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Failed to read s3://%s/%s: %v", bucket, key, err)).WithCause(err)
	}
	return data, nil
}

// PresignGet returns a time-limited GET URL. Expiry is clamped to the SigV4
// maximum of seven days.
func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(clampPresignExpiry(expiry)))
	if err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Failed to presign %s: %v", key, err)).WithCause(err)
	}
	return req.URL, nil
}

func clampPresignExpiry(expiry time.Duration) time.Duration {
	if expiry <= 0 || expiry > maxPresignExpiry {
		return maxPresignExpiry
	}
	return expiry
}
