// Package storage keeps the raw bytes of every uploaded export in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	importapp "github.com/salesplan/backend/internal/application/import"
	infraconfig "github.com/salesplan/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrArchiveNotFound is returned when a key has no archived export
var ErrArchiveNotFound = importapp.ErrNotArchived

const exportContentType = "text/csv"

var _ importapp.ExportArchive = (*S3ExportArchive)(nil)

// S3ExportArchive stores raw exports in an S3 compatible bucket (AWS S3, MinIO, LocalStack).
type S3ExportArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// S3ExportArchiveOption configures an S3ExportArchive
type S3ExportArchiveOption func(*S3ExportArchive)

// WithLogger sets the archive logger
func WithLogger(logger *zap.Logger) S3ExportArchiveOption {
	return func(a *S3ExportArchive) {
		a.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used by the S3 SDK
func WithHTTPClient(client s3.HTTPClient) S3ExportArchiveOption {
	return func(a *S3ExportArchive) {
		a.client = s3.New(a.client.Options(), func(o *s3.Options) {
			o.HTTPClient = client
		})
	}
}

// NewS3ExportArchive creates the archive from the storage configuration.
// Static credentials are used when configured, otherwise the default AWS
// credential chain applies.
func NewS3ExportArchive(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3ExportArchiveOption) (*S3ExportArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// S3 compatible stores do not all accept the flexible checksum headers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	archive := &S3ExportArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *S3ExportArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating export archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads the raw export of a batch and returns its object key
func (a *S3ExportArchive) Store(ctx context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error) {
	key := a.keyFor(batchID, fileName)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(exportContentType),
		Metadata: map[string]string{
			"batch-id":      batchID.String(),
			"original-name": fileName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive export: %w", err)
	}

	a.logger.Debug("Export archived",
		zap.String("batch_id", batchID.String()),
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return key, nil
}

// Fetch downloads an archived export
func (a *S3ExportArchive) Fetch(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrArchiveNotFound
	}

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to fetch archived export: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived export: %w", err)
	}
	return data, nil
}

// Bucket returns the bucket name
func (a *S3ExportArchive) Bucket() string {
	return a.bucket
}

// keyFor builds <prefix>/imports/<yyyy>/<mm>/<batch id>/<file name>
func (a *S3ExportArchive) keyFor(batchID uuid.UUID, fileName string) string {
	now := a.now().UTC()
	parts := []string{
		"imports",
		now.Format("2006"),
		now.Format("01"),
		batchID.String(),
		sanitizeFileName(fileName),
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		return "export.csv"
	}
	return name
}
