// Пакет storage — контракт хранилища байтов учебных ресурсов.
//
// Реализации: disk (локальная файловая система) и blob (S3-совместимое
// объектное хранилище). Выбор реализации — пакет storage/factory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bigkaa/edushare/internal/domain/model"
)

// ErrObjectNotFound — объект с указанным идентификатором отсутствует.
// Stat и OpenDownloadStream возвращают её повторяемо, без побочных эффектов.
var ErrObjectNotFound = errors.New("объект не найден в хранилище")

// Object — параметры записываемого объекта.
type Object struct {
	// Name — оригинальное имя файла
	Name string
	// ContentType — MIME-тип содержимого
	ContentType string
	// Size — ожидаемый размер в байтах, -1 если неизвестен
	Size int64
	// Metadata — дополнительные атрибуты (например, uploaded_by)
	Metadata map[string]string
}

// ReadRange — полуинтервал байт [Start, EndExclusive).
type ReadRange struct {
	Start        int64
	EndExclusive int64
}

// Length возвращает число байт в диапазоне.
func (r ReadRange) Length() int64 {
	return r.EndExclusive - r.Start
}

// Validate проверяет диапазон относительно размера объекта.
func (r ReadRange) Validate(size int64) error {
	if r.Start < 0 || r.EndExclusive <= r.Start || r.EndExclusive > size {
		return fmt.Errorf("некорректный диапазон [%d, %d) для объекта размером %d", r.Start, r.EndExclusive, size)
	}
	return nil
}

// Adapter — хранилище байтов ресурсов.
//
// Upload атомарен с точки зрения вызывающего: объект либо виден целиком,
// либо отсутствует. Возвращённый OpenDownloadStream поток обязан быть закрыт;
// отмена ctx прерывает чтение и освобождает дескриптор/соединение.
type Adapter interface {
	// Kind возвращает вариант хранилища.
	Kind() model.StorageKind
	// Upload записывает поток r целиком и возвращает дескриптор объекта.
	Upload(ctx context.Context, r io.Reader, obj Object) (*model.StoredObject, error)
	// Stat возвращает размер объекта или ErrObjectNotFound.
	Stat(ctx context.Context, id string) (*model.ObjectInfo, error)
	// OpenDownloadStream открывает поток чтения диапазона (nil — весь объект).
	OpenDownloadStream(ctx context.Context, id string, rng *ReadRange) (io.ReadCloser, error)
}

// ListedObject — объект, найденный при перечислении хранилища.
type ListedObject struct {
	ID   string
	Size int64
	// Modified — время последней записи (mtime файла, LastModified в S3)
	Modified time.Time
}

// Lister — перечисление объектов хранилища (используется сверкой).
type Lister interface {
	// Walk вызывает fn для каждого объекта. Ошибка fn прерывает обход.
	Walk(ctx context.Context, fn func(obj ListedObject) error) error
}
