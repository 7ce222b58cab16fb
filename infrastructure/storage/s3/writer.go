// Package s3 provides an S3 object-store writer for approved suggestions.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/filesystem"
)

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("s3: bucket is required")

// PutObjectAPI is the subset of *s3.Client the writer uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config configures the S3 writer.
type Config struct {
	Bucket          string // Target bucket
	Prefix          string // Optional key prefix
	Region          string // AWS region (default: us-east-1)
	AccessKeyID     string // Optional: AWS access key (uses default credential chain if empty)
	SecretAccessKey string // Optional: AWS secret key
	SessionToken    string // Optional: AWS session token
	Endpoint        string // Optional: custom endpoint for S3-compatible storage
}

// Writer implements suggestion.Writer on an S3 bucket using the filesystem
// document format.
type Writer struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// NewWriter creates a writer that puts objects into bucket under prefix.
func NewWriter(client PutObjectAPI, bucket, prefix string) (*Writer, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	return &Writer{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Key returns the object key for s.
func (w *Writer) Key(s *suggestion.Suggestion) string {
	name := filesystem.FileName(s)
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}

// Write uploads s and returns its s3:// location.
func (w *Writer) Write(ctx context.Context, s *suggestion.Suggestion) (string, error) {
	if s == nil {
		return "", suggestion.ErrInvalidSuggestion
	}

	body, err := filesystem.Encode(s)
	if err != nil {
		return "", err
	}

	key := w.Key(s)
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"suggestion-id": s.ID,
			"status":        string(s.Status),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", w.bucket, key)
	logging.Debug().
		Add(logging.SuggestionID(s.ID)).
		Add(logging.Location(location)).
		Msg("suggestion uploaded")
	return location, nil
}

var _ suggestion.Writer = (*Writer)(nil)
