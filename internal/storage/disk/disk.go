// Пакет disk — хранилище ресурсов на локальной файловой системе.
//
// Запись: временный файл → fsync → атомарный rename, поэтому читатели
// никогда не видят частично записанный объект. Идентификатор объекта —
// абсолютный путь файла внутри базовой директории.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/edushare/internal/contenttype"
	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/storage"
)

// tmpPattern — шаблон имени временного файла; такие файлы не считаются объектами.
const tmpPattern = ".upload-*.tmp"

// maxNameLen — ограничение длины очищенного имени файла.
const maxNameLen = 100

// Store — хранилище в базовой директории.
type Store struct {
	// baseDir — абсолютный путь базовой директории
	baseDir string
}

// New создаёт Store. Создаёт директорию, если она не существует.
func New(baseDir string) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", abs, err)
	}
	return &Store{baseDir: abs}, nil
}

// BaseDir возвращает абсолютный путь базовой директории.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Kind возвращает model.StorageDisk.
func (s *Store) Kind() model.StorageKind {
	return model.StorageDisk
}

// Upload записывает поток в файл <uuid>-<очищенное имя>.
// При ошибке временный файл удаляется.
func (s *Store) Upload(ctx context.Context, r io.Reader, obj storage.Object) (*model.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := uuid.NewString() + "-" + sanitize(obj.Name)
	fullPath := filepath.Join(s.baseDir, name)

	f, err := os.CreateTemp(s.baseDir, tmpPattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	size, err := io.Copy(f, &contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &model.StoredObject{
		ID:          fullPath,
		Kind:        model.StorageDisk,
		Name:        obj.Name,
		Size:        size,
		ContentType: obj.ContentType,
	}, nil
}

// Stat возвращает размер файла. Отсутствующий файл, директория
// или путь вне базовой директории — storage.ErrObjectNotFound.
func (s *Store) Stat(_ context.Context, id string) (*model.ObjectInfo, error) {
	path, ok := s.resolve(id)
	if !ok {
		return nil, storage.ErrObjectNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, storage.ErrObjectNotFound
	}

	return &model.ObjectInfo{
		ID:          path,
		Name:        info.Name(),
		Size:        info.Size(),
		ContentType: contenttype.For(info.Name()),
	}, nil
}

// OpenDownloadStream открывает файл и позиционирует чтение на rng.Start.
// Вызывающий код обязан закрыть поток.
func (s *Store) OpenDownloadStream(ctx context.Context, id string, rng *storage.ReadRange) (io.ReadCloser, error) {
	path, ok := s.resolve(id)
	if !ok {
		return nil, storage.ErrObjectNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}

	if rng == nil {
		return &fileStream{ctx: ctx, r: f, f: f}, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
	}
	if err := rng.Validate(info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка позиционирования в файле %s: %w", path, err)
	}

	return &fileStream{ctx: ctx, r: io.LimitReader(f, rng.Length()), f: f}, nil
}

// Walk перечисляет файлы базовой директории, пропуская временные.
func (s *Store) Walk(ctx context.Context, fn func(obj storage.ListedObject) error) error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("ошибка чтения директории %s: %w", s.baseDir, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() || isTemp(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		if err := fn(storage.ListedObject{
			ID:       filepath.Join(s.baseDir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// resolve приводит идентификатор к абсолютному пути и проверяет,
// что он указывает на файл непосредственно в базовой директории.
func (s *Store) resolve(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	path := filepath.Clean(id)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	if filepath.Dir(path) != s.baseDir || isTemp(filepath.Base(path)) {
		return "", false
	}
	return path, true
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".upload-") && strings.HasSuffix(name, ".tmp")
}

// sanitize заменяет символы вне [A-Za-z0-9_.-] на подчёркивание.
func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	if len(out) > maxNameLen {
		out = out[len(out)-maxNameLen:]
	}
	return out
}

// contextReader прерывает чтение после отмены контекста.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// fileStream — поток чтения файла с учётом контекста запроса.
type fileStream struct {
	ctx context.Context
	r   io.Reader
	f   *os.File
}

func (s *fileStream) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	return s.r.Read(p)
}

func (s *fileStream) Close() error {
	return s.f.Close()
}
