package drivers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/FairForge/sal/internal/engine"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Config configures an S3-compatible backend
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Driver stores blobs as objects in one bucket
type S3Driver struct {
	bucket string
	prefix string
	client *s3.Client
	logger *zap.Logger
}

// NewS3Driver creates a new S3 storage driver
func NewS3Driver(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Driver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 driver: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
		// S3-compatible stores often reject the newer default checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Driver{
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		client: client,
		logger: logger,
	}, nil
}

// Name returns the driver name
func (d *S3Driver) Name() string {
	return "s3"
}

func (d *S3Driver) objectKey(key string) string {
	return d.prefix + key
}

// Put stores data in S3
func (d *S3Driver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", d.bucket, key, err)
	}
	return nil
}

// Get retrieves data from S3
func (d *S3Driver) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", engine.ErrNotFound, d.bucket, key)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", d.bucket, key, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", d.bucket, key, err)
	}
	return data, nil
}

// HealthCheck verifies the bucket is reachable
func (d *S3Driver) HealthCheck(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", d.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
