package persistence

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/config"
)

// Minio wraps the object storage client and its bucket.
type Minio struct {
	Client *minio.Client
	Bucket string
}

// NewMinio connects and makes sure the bucket exists. It returns nil when no
// endpoint is configured.
func NewMinio(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Minio, error) {
	if !cfg.MinioEnabled() {
		logger.Info("MINIO_ENDPOINT not provided; avatars stored on local disk")
		return nil, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("minio bucket created", zap.String("bucket", cfg.MinioBucket))
	}

	logger.Info("connected to minio", zap.String("endpoint", cfg.MinioEndpoint))
	return &Minio{Client: client, Bucket: cfg.MinioBucket}, nil
}
