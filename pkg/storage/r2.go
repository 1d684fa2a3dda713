package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// CacheControlMedia is the cache lifetime set on uploaded media and thumbnails.
const CacheControlMedia = "max-age=86400"

// Config holds R2/S3-compatible client configuration.
type Config struct {
	// Endpoint is the S3-compatible endpoint (R2 account endpoint). Empty
	// means plain AWS S3 resolution.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// WorkerURL is the CDN/edge worker fronting the bucket. Preferred for
	// public URLs because it hides the storage topology.
	WorkerURL string
	// CustomDomain is the bucket's public custom domain, used when no
	// worker is configured.
	CustomDomain         string
	PresignExpireMinutes int
}

// Store provides object storage operations against R2 (or any
// S3-compatible endpoint).
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      Config
	logger   *zap.Logger
}

// NewStore creates an R2 client using credentials from config or the
// environment (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		if logger != nil {
			logger.Info("storage client configured", zap.String("bucket", cfg.Bucket), zap.String("endpoint", cfg.Endpoint))
		}
	} else if logger != nil {
		logger.Warn("storage client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &Store{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.cfg.Bucket }

// Upload writes one object with a long cache lifetime and returns its
// public URL. The uploader performs a single put for small bodies and
// splits large ones into parts in the same call.
func (s *Store) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
		CacheControl:  aws.String(CacheControlMedia),
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.PublicURL(key), nil
}

// DeleteObject removes an object from the bucket.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL resolves the public URL for an object key. Resolution order
// matters: the worker URL and custom domain hide the storage endpoint and
// credentials topology; the raw endpoint form is the last resort.
func (s *Store) PublicURL(key string) string {
	if s.cfg.WorkerURL != "" {
		return strings.TrimRight(s.cfg.WorkerURL, "/") + "/" + key
	}
	if s.cfg.CustomDomain != "" {
		domain := s.cfg.CustomDomain
		if !strings.HasPrefix(domain, "http") {
			domain = "https://" + domain
		}
		return strings.TrimRight(domain, "/") + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
}
