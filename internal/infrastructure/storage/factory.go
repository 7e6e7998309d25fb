package storage

import (
	"context"
	"fmt"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewDocumentArchive builds the archive named by cfg.Driver. It returns nil
// when archiving is disabled.
func NewDocumentArchive(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (appbilling.DocumentArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case "":
		return nil, nil
	case "local":
		archive, err := NewLocalArchive(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Document archive ready", zap.String("driver", "local"), zap.String("path", archive.Root()))
		return archive, nil
	case "s3":
		archive, err := NewS3Archive(&cfg, WithLogger(logger.Named("archive")))
		if err != nil {
			return nil, err
		}
		if cfg.CreateBucket {
			if err := archive.EnsureBucket(ctx); err != nil {
				return nil, err
			}
		}
		logger.Debug("Document archive ready", zap.String("driver", "s3"), zap.String("bucket", archive.Bucket()))
		return archive, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
