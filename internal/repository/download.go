package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/edushare/internal/domain/model"
)

// DownloadRepository — история скачиваний (таблица downloads).
type DownloadRepository interface {
	// Record добавляет запись о скачивании.
	Record(ctx context.Context, userID, resourceID string) error
	// ListResourcesByUser возвращает различные скачанные ресурсы,
	// последние скачанные первыми.
	ListResourcesByUser(ctx context.Context, userID string) ([]*model.Resource, error)
}

type downloadRepo struct {
	db DBTX
}

// NewDownloadRepository создаёт репозиторий истории скачиваний.
func NewDownloadRepository(db DBTX) DownloadRepository {
	return &downloadRepo{db: db}
}

func (r *downloadRepo) Record(ctx context.Context, userID, resourceID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO downloads (user_id, resource_id) VALUES ($1, $2)`,
		userID, resourceID,
	)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return fmt.Errorf("%w: ресурс %s", ErrNotFound, resourceID)
		}
		return fmt.Errorf("ошибка записи истории скачивания: %w", err)
	}
	return nil
}

func (r *downloadRepo) ListResourcesByUser(ctx context.Context, userID string) ([]*model.Resource, error) {
	query := `
		SELECT r.id, r.title, r.subject, r.description, r.uploaded_by, r.file_name,
			r.content_type, r.storage, r.file_path, r.blob_key, r.file_size, r.download_count,
			r.created_at, r.updated_at
		FROM resources r
		JOIN (
			SELECT resource_id, max(created_at) AS last_at
			FROM downloads
			WHERE user_id = $1
			GROUP BY resource_id
		) d ON d.resource_id = r.id
		ORDER BY d.last_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории скачиваний: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Resource, 0)
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения ресурса: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации истории скачиваний: %w", err)
	}
	return result, nil
}
