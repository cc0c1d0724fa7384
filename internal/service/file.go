// file.go — FileService: единая точка доступа к хранилищу байтов.
//
// Жизненный цикл: Uninitialized → Ready, переход выполняется один раз
// вызовом Init после подключения хранилища. До этого все операции
// возвращают ErrNotInitialized. Обратного перехода нет.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/storage"
)

// FileState — состояние FileService.
type FileState string

const (
	// FileStateUninitialized — хранилище ещё не подключено
	FileStateUninitialized FileState = "uninitialized"
	// FileStateReady — хранилище подключено, операции доступны
	FileStateReady FileState = "ready"
)

// FileService — обёртка над storage.Adapter с защитой от раннего использования.
// Потокобезопасен: RWMutex защищает только ссылку на адаптер.
type FileService struct {
	mu      sync.RWMutex
	adapter storage.Adapter
	logger  *slog.Logger
}

// NewFileService создаёт FileService в состоянии Uninitialized.
func NewFileService(logger *slog.Logger) *FileService {
	return &FileService{
		logger: logger.With(slog.String("component", "file_service")),
	}
}

// Init переводит сервис в Ready. Повторный вызов — ErrAlreadyInitialized.
func (s *FileService) Init(adapter storage.Adapter) error {
	if adapter == nil {
		return fmt.Errorf("адаптер хранилища не задан")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter != nil {
		return ErrAlreadyInitialized
	}
	s.adapter = adapter

	s.logger.Info("Файловый сервис готов",
		slog.String("storage", string(adapter.Kind())),
	)
	return nil
}

// State возвращает текущее состояние.
func (s *FileService) State() FileState {
	if s.current() == nil {
		return FileStateUninitialized
	}
	return FileStateReady
}

// Ready возвращает true после Init.
func (s *FileService) Ready() bool {
	return s.current() != nil
}

// Kind возвращает вариант подключённого хранилища (пусто до Init).
func (s *FileService) Kind() model.StorageKind {
	a := s.current()
	if a == nil {
		return ""
	}
	return a.Kind()
}

// Upload записывает байты через адаптер.
func (s *FileService) Upload(ctx context.Context, r io.Reader, obj storage.Object) (*model.StoredObject, error) {
	a := s.current()
	if a == nil {
		return nil, ErrNotInitialized
	}
	return a.Upload(ctx, r, obj)
}

// Stat возвращает сведения об объекте или storage.ErrObjectNotFound.
func (s *FileService) Stat(ctx context.Context, id string) (*model.ObjectInfo, error) {
	a := s.current()
	if a == nil {
		return nil, ErrNotInitialized
	}
	return a.Stat(ctx, id)
}

// OpenDownloadStream открывает поток чтения диапазона (nil — весь объект).
func (s *FileService) OpenDownloadStream(ctx context.Context, id string, rng *storage.ReadRange) (io.ReadCloser, error) {
	a := s.current()
	if a == nil {
		return nil, ErrNotInitialized
	}
	return a.OpenDownloadStream(ctx, id, rng)
}

// Lister возвращает перечислитель объектов, если адаптер его поддерживает.
func (s *FileService) Lister() (storage.Lister, bool) {
	a := s.current()
	if a == nil {
		return nil, false
	}
	l, ok := a.(storage.Lister)
	return l, ok
}

func (s *FileService) current() storage.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter
}

// Name возвращает имя проверки в ответе /health/ready.
func (s *FileService) Name() string {
	return "file_service"
}

// CheckReady сообщает, подключено ли хранилище.
func (s *FileService) CheckReady() (status string, message string) {
	a := s.current()
	if a == nil {
		return "fail", "хранилище не подключено"
	}
	return "ok", "хранилище " + string(a.Kind())
}
