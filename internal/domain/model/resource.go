// Пакет model — доменные модели EduShare: учебный ресурс,
// счётчики пользователя и дескрипторы объектов хранилища.
package model

import (
	"time"
)

// StorageKind — вариант хранилища, в котором лежат байты ресурса.
type StorageKind string

const (
	// StorageDisk — локальная файловая система
	StorageDisk StorageKind = "disk"
	// StorageBlob — S3-совместимое объектное хранилище
	StorageBlob StorageKind = "blob"
)

// Resource — метаданные загруженного документа.
// Ровно одно из полей FilePath / BlobKey заполнено, в зависимости от Storage.
type Resource struct {
	// ID — идентификатор ресурса (UUID v4)
	ID string `json:"id"`
	// Title — название документа
	Title string `json:"title"`
	// Subject — учебный предмет (регистр сохраняется, поиск без учёта регистра)
	Subject string `json:"subject"`
	// Description — описание документа
	Description string `json:"description"`
	// UploadedBy — идентификатор загрузившего пользователя
	UploadedBy string `json:"uploaded_by"`
	// FileName — оригинальное имя файла
	FileName string `json:"file_name"`
	// ContentType — MIME-тип содержимого
	ContentType string `json:"content_type"`
	// Storage — вариант хранилища
	Storage StorageKind `json:"storage"`
	// FilePath — абсолютный путь файла (только disk). Не отдаётся клиенту.
	FilePath string `json:"-"`
	// BlobKey — ключ объекта (только blob). Не отдаётся клиенту.
	BlobKey string `json:"-"`
	// FileSize — размер в байтах
	FileSize int64 `json:"file_size"`
	// DownloadCount — число скачиваний
	DownloadCount int64 `json:"download_count"`
	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего изменения (UTC)
	UpdatedAt time.Time `json:"updated_at"`
}

// ObjectID возвращает идентификатор объекта в хранилище ресурса.
func (r *Resource) ObjectID() string {
	if r.Storage == StorageBlob {
		return r.BlobKey
	}
	return r.FilePath
}

// UserCounters — счётчики активности пользователя.
type UserCounters struct {
	UserID        string `json:"user_id"`
	UploadCount   int64  `json:"upload_count"`
	DownloadCount int64  `json:"download_count"`
}
