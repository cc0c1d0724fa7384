package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/edushare/internal/domain/model"
)

// UserRepository — счётчики активности пользователей (таблица users).
// Строка пользователя создаётся первой операцией над ним.
type UserRepository interface {
	// IncrementUploads атомарно увеличивает upload_count и возвращает новые значения.
	IncrementUploads(ctx context.Context, userID string) (*model.UserCounters, error)
	// IncrementDownloads атомарно увеличивает download_count.
	IncrementDownloads(ctx context.Context, userID string) error
	// GetCounters возвращает счётчики; неизвестный пользователь — нули.
	GetCounters(ctx context.Context, userID string) (*model.UserCounters, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий счётчиков пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) IncrementUploads(ctx context.Context, userID string) (*model.UserCounters, error) {
	query := `
		INSERT INTO users (id, upload_count) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE
		SET upload_count = users.upload_count + 1, updated_at = now()
		RETURNING id, upload_count, download_count`

	c := &model.UserCounters{}
	if err := r.db.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.UploadCount, &c.DownloadCount); err != nil {
		return nil, fmt.Errorf("ошибка увеличения счётчика загрузок: %w", err)
	}
	return c, nil
}

func (r *userRepo) IncrementDownloads(ctx context.Context, userID string) error {
	query := `
		INSERT INTO users (id, download_count) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE
		SET download_count = users.download_count + 1, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("ошибка увеличения счётчика скачиваний пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetCounters(ctx context.Context, userID string) (*model.UserCounters, error) {
	c := &model.UserCounters{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT upload_count, download_count FROM users WHERE id = $1`, userID,
	).Scan(&c.UploadCount, &c.DownloadCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, fmt.Errorf("ошибка получения счётчиков пользователя: %w", err)
	}
	return c, nil
}
