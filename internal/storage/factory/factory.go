// Пакет factory — выбор реализации хранилища по конфигурации.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/edushare/internal/config"
	"github.com/bigkaa/edushare/internal/storage"
	"github.com/bigkaa/edushare/internal/storage/blob"
	"github.com/bigkaa/edushare/internal/storage/disk"
)

// New создаёт хранилище согласно cfg.StorageMode.
// Неизвестный режим или недоступное хранилище — ошибка без повторных попыток.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Adapter, error) {
	switch cfg.StorageMode {
	case config.StorageDisk:
		s, err := disk.New(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище: локальная файловая система",
			slog.String("dir", s.BaseDir()),
		)
		return s, nil

	case config.StorageBlob:
		s, err := blob.New(ctx, blob.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище: S3-совместимое",
			slog.String("endpoint", cfg.S3Endpoint),
			slog.String("bucket", cfg.S3Bucket),
		)
		return s, nil

	default:
		return nil, fmt.Errorf("неизвестный режим хранилища %q", cfg.StorageMode)
	}
}
