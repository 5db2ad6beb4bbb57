package storage

import (
	"context"
	"fmt"

	"github.com/smallbiznis/moviestore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Storage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		log.Info("image storage: s3", zap.String("bucket", cfg.Storage.S3Bucket))
		return NewS3(context.Background(), S3Config{
			Bucket:        cfg.Storage.S3Bucket,
			Region:        cfg.Storage.S3Region,
			Endpoint:      cfg.Storage.S3Endpoint,
			AccessKey:     cfg.Storage.S3AccessKey,
			SecretKey:     cfg.Storage.S3SecretKey,
			UsePathStyle:  cfg.Storage.S3UsePathStyle,
			PublicBaseURL: cfg.Storage.S3PublicBaseURL,
		})
	case "", "local":
		log.Info("image storage: local", zap.String("dir", cfg.Storage.LocalDir))
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
