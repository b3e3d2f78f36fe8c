package captureservice

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioConfig points captures at an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `json:"accessKey" yaml:"accessKey" env:"MINIO_ACCESS_KEY"`
	SecretKey string `json:"secretKey" yaml:"secretKey" env:"MINIO_SECRET_KEY"`
	Bucket    string `json:"bucket" yaml:"bucket" env:"MINIO_BUCKET"`
	Secure    bool   `json:"secure" yaml:"secure" env:"MINIO_SECURE"`
}

// Enabled reports whether an endpoint and bucket were configured.
func (c MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// MinioArchiver uploads captures to a bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to the endpoint and creates the bucket if needed.
func NewMinioArchiver(ctx context.Context, cfg MinioConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Msgf("Created capture bucket %s", cfg.Bucket)
	}

	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioArchiver) Archive(ctx context.Context, name string, image []byte) error {
	_, err := m.client.PutObject(
		ctx,
		m.bucket,
		name,
		bytes.NewReader(image),
		int64(len(image)),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save capture to S3: %w", err)
	}
	return nil
}
