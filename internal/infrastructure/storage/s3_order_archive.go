// Package storage archives finalized orders to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/subscription"
	infraconfig "github.com/selkies/backend/internal/infrastructure/config"
)

var _ subscription.OrderArchive = (*S3OrderArchive)(nil)

// S3OrderArchive writes each finalized order as a JSON document.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3OrderArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3OrderArchiveOption is a functional option for configuring S3OrderArchive
type S3OrderArchiveOption func(*S3OrderArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3OrderArchiveOption {
	return func(s *S3OrderArchive) {
		s.logger = logger
	}
}

// NewS3OrderArchive creates a new S3OrderArchive from configuration.
// Without static keys the default AWS credential chain is used.
func NewS3OrderArchive(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3OrderArchiveOption) (*S3OrderArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key and secret key must be set together")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// Not every S3-compatible store accepts the SDK's default checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	archive := &S3OrderArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// Key returns the object key an order is archived under
func (s *S3OrderArchive) Key(order *subscription.Order) string {
	return fmt.Sprintf("%s%s/%s.json", s.prefix, order.CreatedAt.UTC().Format("2006/01/02"), order.ID)
}

// Archive stores the order document. Re-archiving an order overwrites the same key.
func (s *S3OrderArchive) Archive(ctx context.Context, order *subscription.Order) error {
	if order == nil {
		return errors.New("order is required")
	}
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	key := s.Key(order)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"plan-id":           order.PlanID.String(),
			"payment-reference": order.PaymentReference,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload order %s: %w", order.ID, err)
	}

	s.logger.Debug("Archived order",
		zap.String("order_id", order.ID.String()),
		zap.String("bucket", s.bucket),
		zap.String("key", key))
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3OrderArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating order archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" error (race condition)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Bucket returns the bucket name
func (s *S3OrderArchive) Bucket() string {
	return s.bucket
}
