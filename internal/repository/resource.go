package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/edushare/internal/domain/model"
)

// ResourceRepository — интерфейс доступа к таблице resources.
type ResourceRepository interface {
	// Create сохраняет метаданные нового ресурса.
	Create(ctx context.Context, r *model.Resource) error
	// GetByID возвращает ресурс по UUID.
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	// List возвращает все ресурсы, новые первыми.
	List(ctx context.Context) ([]*model.Resource, error)
	// ListPopular возвращает ресурсы по убыванию числа скачиваний.
	ListPopular(ctx context.Context, limit int) ([]*model.Resource, error)
	// ListSubjects возвращает отсортированный список различных предметов.
	ListSubjects(ctx context.Context) ([]string, error)
	// ListBySubject возвращает ресурсы предмета без учёта регистра.
	ListBySubject(ctx context.Context, subject string) ([]*model.Resource, error)
	// ListByUploader возвращает ресурсы, загруженные пользователем.
	ListByUploader(ctx context.Context, userID string) ([]*model.Resource, error)
	// IncrementDownloads атомарно увеличивает download_count на 1.
	IncrementDownloads(ctx context.Context, id string) error
}

// resourceColumns — порядок колонок соответствует scanResource.
const resourceColumns = `id, title, subject, description, uploaded_by, file_name,
	content_type, storage, file_path, blob_key, file_size, download_count,
	created_at, updated_at`

type resourceRepo struct {
	db DBTX
}

// NewResourceRepository создаёт репозиторий ресурсов.
func NewResourceRepository(db DBTX) ResourceRepository {
	return &resourceRepo{db: db}
}

func (r *resourceRepo) Create(ctx context.Context, res *model.Resource) error {
	query := `
		INSERT INTO resources (id, title, subject, description, uploaded_by, file_name,
			content_type, storage, file_path, blob_key, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING download_count, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		res.ID, res.Title, res.Subject, res.Description, res.UploadedBy, res.FileName,
		res.ContentType, string(res.Storage), nullIfEmpty(res.FilePath), nullIfEmpty(res.BlobKey),
		res.FileSize,
	).Scan(&res.DownloadCount, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ресурс %s уже существует", ErrConflict, res.ID)
		}
		return fmt.Errorf("ошибка создания ресурса: %w", err)
	}
	return nil
}

func (r *resourceRepo) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`

	res, err := scanResource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ресурса: %w", err)
	}
	return res, nil
}

func (r *resourceRepo) List(ctx context.Context) ([]*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources ORDER BY created_at DESC`
	return r.queryResources(ctx, query)
}

func (r *resourceRepo) ListPopular(ctx context.Context, limit int) ([]*model.Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM resources
		ORDER BY download_count DESC, created_at DESC
		LIMIT $1`
	return r.queryResources(ctx, query, limit)
}

func (r *resourceRepo) ListSubjects(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT subject FROM resources ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка предметов: %w", err)
	}
	subjects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка предметов: %w", err)
	}
	return subjects, nil
}

func (r *resourceRepo) ListBySubject(ctx context.Context, subject string) ([]*model.Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM resources
		WHERE lower(subject) = lower($1)
		ORDER BY created_at DESC`
	return r.queryResources(ctx, query, subject)
}

func (r *resourceRepo) ListByUploader(ctx context.Context, userID string) ([]*model.Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM resources
		WHERE uploaded_by = $1
		ORDER BY created_at DESC`
	return r.queryResources(ctx, query, userID)
}

func (r *resourceRepo) IncrementDownloads(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE resources
		SET download_count = download_count + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		if isInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка увеличения счётчика скачиваний ресурса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resourceRepo) queryResources(ctx context.Context, query string, args ...any) ([]*model.Resource, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ресурсов: %w", err)
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
		return nil, fmt.Errorf("ошибка итерации ресурсов: %w", err)
	}
	return result, nil
}

// scanResource читает строку в порядке resourceColumns.
func scanResource(row pgx.Row) (*model.Resource, error) {
	var (
		res      model.Resource
		storage  string
		filePath *string
		blobKey  *string
	)
	err := row.Scan(
		&res.ID, &res.Title, &res.Subject, &res.Description, &res.UploadedBy, &res.FileName,
		&res.ContentType, &storage, &filePath, &blobKey, &res.FileSize, &res.DownloadCount,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Storage = model.StorageKind(storage)
	res.FilePath = derefString(filePath)
	res.BlobKey = derefString(blobKey)
	return &res, nil
}
