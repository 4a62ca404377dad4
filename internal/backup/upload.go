package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader copies a finished archive to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes the upload target. Endpoint is only needed for
// S3-compatible stores; empty credentials fall back to the default AWS
// credential chain.
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Uploader uploads archives with a single PutObject each.
type S3Uploader struct {
	logger zerolog.Logger
	client putObjectAPI
	bucket string
}

// NewS3Uploader builds an S3 client from cfg.
func NewS3Uploader(ctx context.Context, logger zerolog.Logger, cfg S3Config) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Uploader(logger, s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket), nil
}

func newS3Uploader(logger zerolog.Logger, client putObjectAPI, bucket string) *S3Uploader {
	return &S3Uploader{
		logger: logger.With().Str("component", "s3-uploader").Str("bucket", bucket).Logger(),
		client: client,
		bucket: bucket,
	}
}

// Upload streams the file at path to key.
func (u *S3Uploader) Upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}

	u.logger.Info().Str("key", key).Int64("bytes", info.Size()).Msg("archive uploaded")
	return nil
}
