// Пакет blob — хранилище ресурсов в S3-совместимом объектном хранилище
// (MinIO, Ceph RGW, AWS S3) через minio-go.
//
// Ключ объекта — resources/<uuid>. Оригинальное имя файла и атрибуты
// вызывающего сохраняются в пользовательских метаданных объекта.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/storage"
)

// KeyPrefix — префикс ключей объектов ресурсов в бакете.
const KeyPrefix = "resources/"

// Метаданные объекта (minio добавляет префикс X-Amz-Meta-).
const (
	metaOriginalName = "Original-Name"
)

// Config — параметры подключения к хранилищу.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store — хранилище ресурсов в бакете.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New подключается к хранилищу и проверяет бакет.
// Отсутствующий бакет создаётся. Недоступное хранилище — ошибка,
// сервис не должен стартовать без него.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента S3: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("хранилище S3 %s недоступно: %w", cfg.Endpoint, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.Bucket, err)
		}
		logger.Info("Бакет создан", slog.String("bucket", cfg.Bucket))
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(slog.String("component", "blob_store")),
	}, nil
}

// Kind возвращает model.StorageBlob.
func (s *Store) Kind() model.StorageKind {
	return model.StorageBlob
}

// Bucket возвращает имя бакета.
func (s *Store) Bucket() string {
	return s.bucket
}

// Upload записывает поток одним PutObject: объект становится видимым
// только после успешного завершения загрузки.
func (s *Store) Upload(ctx context.Context, r io.Reader, obj storage.Object) (*model.StoredObject, error) {
	key := KeyPrefix + uuid.NewString()

	meta := make(map[string]string, len(obj.Metadata)+1)
	for k, v := range obj.Metadata {
		meta[k] = url.QueryEscape(v)
	}
	meta[metaOriginalName] = url.QueryEscape(obj.Name)

	size := obj.Size
	if size < 0 {
		size = -1
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}

	s.logger.Debug("Объект записан",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)

	return &model.StoredObject{
		ID:          key,
		Kind:        model.StorageBlob,
		Name:        obj.Name,
		Size:        info.Size,
		ContentType: obj.ContentType,
	}, nil
}

// Stat возвращает размер объекта или storage.ErrObjectNotFound.
func (s *Store) Stat(ctx context.Context, id string) (*model.ObjectInfo, error) {
	if !validKey(id) {
		return nil, storage.ErrObjectNotFound
	}

	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка получения информации об объекте %s: %w", id, err)
	}

	name := id
	if v := info.UserMetadata[metaOriginalName]; v != "" {
		if decoded, err := url.QueryUnescape(v); err == nil {
			name = decoded
		}
	}

	return &model.ObjectInfo{
		ID:          id,
		Name:        name,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

// OpenDownloadStream открывает поток чтения объекта.
// Отмена ctx разрывает HTTP-соединение с хранилищем.
func (s *Store) OpenDownloadStream(ctx context.Context, id string, rng *storage.ReadRange) (io.ReadCloser, error) {
	if !validKey(id) {
		return nil, storage.ErrObjectNotFound
	}

	opts := minio.GetObjectOptions{}
	if rng != nil {
		if rng.Start < 0 || rng.EndExclusive <= rng.Start {
			return nil, fmt.Errorf("некорректный диапазон [%d, %d)", rng.Start, rng.EndExclusive)
		}
		// SetRange принимает включающие границы
		if err := opts.SetRange(rng.Start, rng.EndExclusive-1); err != nil {
			return nil, fmt.Errorf("некорректный диапазон: %w", err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, id, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", id, err)
	}

	// GetObject ленивый: Stat выполняет первый запрос и выявляет отсутствие объекта
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", id, err)
	}

	return obj, nil
}

// Walk перечисляет объекты ресурсов в бакете.
func (s *Store) Walk(ctx context.Context, fn func(obj storage.ListedObject) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    KeyPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("ошибка перечисления объектов: %w", obj.Err)
		}
		if err := fn(storage.ListedObject{ID: obj.Key, Size: obj.Size, Modified: obj.LastModified}); err != nil {
			return err
		}
	}
	return nil
}

// validKey отсекает ключи вне пространства ресурсов.
func validKey(id string) bool {
	return strings.HasPrefix(id, KeyPrefix) && len(id) > len(KeyPrefix)
}

// isNotFound распознаёт ответ S3 об отсутствии объекта.
func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	resp = minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
