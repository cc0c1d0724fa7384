// resource.go — ResourceService: загрузка, поиск и учёт скачиваний ресурсов.
//
// Порядок загрузки: байты в хранилище → метаданные → счётчик загрузок.
// Метаданные никогда не пишутся раньше байтов. Сбой записи метаданных
// после успешной записи байтов оставляет объект-сироту: он логируется
// и обнаруживается сверкой (ReconcileService), компенсирующего удаления нет.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/edushare/internal/api/errors"
	"github.com/bigkaa/edushare/internal/contenttype"
	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/repository"
	"github.com/bigkaa/edushare/internal/storage"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edu_uploads_total",
		Help: "Общее количество загрузок ресурсов по результату.",
	}, []string{"result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edu_upload_bytes_total",
		Help: "Общий объём загруженных байт.",
	})

	orphanedObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edu_orphaned_objects_total",
		Help: "Объекты, записанные в хранилище без сохранённых метаданных.",
	})
)

// errFileTooLarge — поток длиннее допустимого размера.
var errFileTooLarge = errors.New("файл превышает допустимый размер")

const (
	// DefaultPopularLimit — размер списка популярных ресурсов.
	DefaultPopularLimit = 10
	// DefaultMaxUploadSize — лимит размера файла, если он не задан (10 MiB).
	DefaultMaxUploadSize int64 = 10 << 20
)

// ResourceServiceConfig — параметры политики ресурсов.
type ResourceServiceConfig struct {
	// MaxUploadSize — максимальный размер файла в байтах (0 — DefaultMaxUploadSize)
	MaxUploadSize int64
	// AllowedExtensions — допустимые расширения (нижний регистр, без точки)
	AllowedExtensions []string
	// DownloadMinUploads — порог загрузок для скачивания (0 — выключено)
	DownloadMinUploads int
	// PopularLimit — размер списка популярных
	PopularLimit int
}

// UploadParams — параметры загрузки ресурса.
type UploadParams struct {
	// UserID — идентификатор загружающего пользователя
	UserID string
	// Reader — поток содержимого файла
	Reader io.Reader
	// FileName — оригинальное имя файла
	FileName string
	// ContentType — MIME-тип, заявленный клиентом (может быть пустым)
	ContentType string
	// Size — заявленный размер, -1 если неизвестен
	Size int64
	Title       string
	Subject     string
	Description string
}

// UploadResult — созданный ресурс и обновлённые счётчики пользователя.
type UploadResult struct {
	Resource *model.Resource     `json:"resource"`
	Counters *model.UserCounters `json:"counters"`
}

// ResourceService — бизнес-логика учебных ресурсов.
type ResourceService struct {
	files      *FileService
	resources  repository.ResourceRepository
	users      repository.UserRepository
	downloads  repository.DownloadRepository
	cache      *CacheService
	dispatcher *CounterDispatcher
	cfg        ResourceServiceConfig
	logger     *slog.Logger
}

// NewResourceService создаёт сервис ресурсов.
func NewResourceService(
	files *FileService,
	resources repository.ResourceRepository,
	users repository.UserRepository,
	downloads repository.DownloadRepository,
	cache *CacheService,
	dispatcher *CounterDispatcher,
	cfg ResourceServiceConfig,
	logger *slog.Logger,
) *ResourceService {
	if cfg.PopularLimit <= 0 {
		cfg.PopularLimit = DefaultPopularLimit
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	return &ResourceService{
		files:      files,
		resources:  resources,
		users:      users,
		downloads:  downloads,
		cache:      cache,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "resource_service")),
	}
}

// Upload сохраняет файл и создаёт ресурс.
func (s *ResourceService) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	if p.UserID == "" {
		return nil, ErrIdentityRequired
	}
	if err := s.validateUpload(&p); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ct := contenttype.Resolve(p.ContentType, p.FileName)

	// 1. Байты в хранилище
	stored, err := s.files.Upload(ctx, &maxBytesReader{r: p.Reader, n: s.cfg.MaxUploadSize}, storage.Object{
		Name:        p.FileName,
		ContentType: ct,
		Size:        p.Size,
		Metadata:    map[string]string{"Uploaded-By": p.UserID},
	})
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			uploadsTotal.WithLabelValues("rejected").Inc()
			return nil, s.tooLarge()
		}
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ошибка сохранения файла: %w", err)
	}

	// 2. Метаданные, ссылающиеся на объект
	res := &model.Resource{
		ID:          uuid.NewString(),
		Title:       p.Title,
		Subject:     p.Subject,
		Description: p.Description,
		UploadedBy:  p.UserID,
		FileName:    p.FileName,
		ContentType: ct,
		Storage:     stored.Kind,
		FileSize:    stored.Size,
	}
	if stored.Kind == model.StorageBlob {
		res.BlobKey = stored.ID
	} else {
		res.FilePath = stored.ID
	}

	// 3. Сохранение метаданных
	if err := s.resources.Create(ctx, res); err != nil {
		orphanedObjectsTotal.Inc()
		uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Метаданные не сохранены, объект остался без ссылки",
			slog.String("object_id", stored.ID),
			slog.String("storage", string(stored.Kind)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ошибка сохранения метаданных ресурса: %w", err)
	}

	// 4. Счётчик загрузок пользователя
	counters, err := s.users.IncrementUploads(ctx, p.UserID)
	if err != nil {
		s.logger.Error("Не удалось увеличить счётчик загрузок",
			slog.String("user_id", p.UserID),
			slog.String("resource_id", res.ID),
			slog.String("error", err.Error()),
		)
		counters = &model.UserCounters{UserID: p.UserID}
		if current, getErr := s.users.GetCounters(ctx, p.UserID); getErr == nil {
			counters = current
		}
	}

	s.cache.Set(res)
	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(res.FileSize))

	s.logger.Info("Ресурс загружен",
		slog.String("resource_id", res.ID),
		slog.String("user_id", p.UserID),
		slog.String("file_name", res.FileName),
		slog.Int64("size", res.FileSize),
		slog.String("storage", string(res.Storage)),
	)

	return &UploadResult{Resource: res, Counters: counters}, nil
}

// validateUpload проверяет обязательные поля, расширение и заявленный размер.
func (s *ResourceService) validateUpload(p *UploadParams) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Subject = strings.TrimSpace(p.Subject)
	p.Description = strings.TrimSpace(p.Description)

	if p.Reader == nil || p.FileName == "" || p.Title == "" || p.Subject == "" || p.Description == "" {
		return &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "Обязательны поля file, title, subject и description",
		}
	}

	ext := contenttype.Extension(p.FileName)
	if len(s.cfg.AllowedExtensions) > 0 && !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeUnsupportedFileType,
			Message:    fmt.Sprintf("Допустимы только документы: %s", strings.Join(s.cfg.AllowedExtensions, ", ")),
		}
	}

	if p.Size > s.cfg.MaxUploadSize {
		return s.tooLarge()
	}
	return nil
}

func (s *ResourceService) tooLarge() *UploadError {
	return &UploadError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    fmt.Sprintf("Размер файла превышает %d байт", s.cfg.MaxUploadSize),
	}
}

// Get возвращает ресурс по id. Некорректный UUID — ErrNotFound.
func (s *ResourceService) Get(ctx context.Context, id string) (*model.Resource, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	if res, ok := s.cache.Get(id); ok {
		return res, nil
	}

	res, err := s.resources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.cache.Set(res)
	return res, nil
}

// Locate возвращает ресурс и сведения о его объекте в хранилище.
// Отсутствие строки или объекта — ErrNotFound.
func (s *ResourceService) Locate(ctx context.Context, id string) (*model.Resource, *model.ObjectInfo, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	info, err := s.files.Stat(ctx, res.ObjectID())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("Объект ресурса отсутствует в хранилище",
				slog.String("resource_id", res.ID),
				slog.String("object_id", res.ObjectID()),
			)
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return res, info, nil
}

// ListAll возвращает все ресурсы, новые первыми.
func (s *ResourceService) ListAll(ctx context.Context) ([]*model.Resource, error) {
	return s.resources.List(ctx)
}

// ListPopular возвращает самые скачиваемые ресурсы.
func (s *ResourceService) ListPopular(ctx context.Context) ([]*model.Resource, error) {
	return s.resources.ListPopular(ctx, s.cfg.PopularLimit)
}

// ListSubjects возвращает отсортированный список предметов.
func (s *ResourceService) ListSubjects(ctx context.Context) ([]string, error) {
	return s.resources.ListSubjects(ctx)
}

// ListBySubject возвращает ресурсы предмета (без учёта регистра).
func (s *ResourceService) ListBySubject(ctx context.Context, subject string) ([]*model.Resource, error) {
	return s.resources.ListBySubject(ctx, strings.TrimSpace(subject))
}

// MyUploads возвращает ресурсы, загруженные пользователем.
func (s *ResourceService) MyUploads(ctx context.Context, userID string) ([]*model.Resource, error) {
	if userID == "" {
		return nil, ErrIdentityRequired
	}
	return s.resources.ListByUploader(ctx, userID)
}

// MyDownloads возвращает ресурсы, скачанные пользователем.
func (s *ResourceService) MyDownloads(ctx context.Context, userID string) ([]*model.Resource, error) {
	if userID == "" {
		return nil, ErrIdentityRequired
	}
	return s.downloads.ListResourcesByUser(ctx, userID)
}

// Counters возвращает счётчики пользователя.
func (s *ResourceService) Counters(ctx context.Context, userID string) (*model.UserCounters, error) {
	if userID == "" {
		return nil, ErrIdentityRequired
	}
	return s.users.GetCounters(ctx, userID)
}

// CheckDownloadQuota проверяет условие по числу загрузок.
// При выключенной политике всегда nil.
func (s *ResourceService) CheckDownloadQuota(ctx context.Context, userID string) error {
	if s.cfg.DownloadMinUploads <= 0 {
		return nil
	}
	if userID == "" {
		return ErrIdentityRequired
	}

	counters, err := s.users.GetCounters(ctx, userID)
	if err != nil {
		return fmt.Errorf("ошибка проверки квоты: %w", err)
	}
	required := int64(s.cfg.DownloadMinUploads)
	if counters.UploadCount < required {
		return &QuotaError{Required: required, Uploaded: counters.UploadCount}
	}
	return nil
}

// RegisterDownload увеличивает счётчики ресурса и пользователя и пишет историю.
// Три операции независимы: сбой одной не отменяет остальные.
func (s *ResourceService) RegisterDownload(ctx context.Context, resourceID, userID string) error {
	var errs []error

	if err := s.resources.IncrementDownloads(ctx, resourceID); err != nil {
		counterFailuresTotal.WithLabelValues("resource").Inc()
		errs = append(errs, fmt.Errorf("счётчик ресурса: %w", err))
	} else {
		s.cache.Delete(resourceID)
	}

	if userID != "" {
		if err := s.users.IncrementDownloads(ctx, userID); err != nil {
			counterFailuresTotal.WithLabelValues("user").Inc()
			errs = append(errs, fmt.Errorf("счётчик пользователя: %w", err))
		}
		if err := s.downloads.Record(ctx, userID, resourceID); err != nil {
			counterFailuresTotal.WithLabelValues("history").Inc()
			errs = append(errs, fmt.Errorf("история скачиваний: %w", err))
		}
	}

	return errors.Join(errs...)
}

// DispatchDownload запускает RegisterDownload в фоне и сразу возвращает управление.
func (s *ResourceService) DispatchDownload(ctx context.Context, resourceID, userID string) {
	s.dispatcher.Go(ctx, "register_download", func(ctx context.Context) error {
		return s.RegisterDownload(ctx, resourceID, userID)
	})
}

// maxBytesReader возвращает errFileTooLarge, если поток длиннее n байт.
type maxBytesReader struct {
	r io.Reader
	n int64
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	if m.n <= 0 {
		var extra [1]byte
		n, err := m.r.Read(extra[:])
		if n > 0 {
			return 0, errFileTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > m.n {
		p = p[:m.n]
	}
	n, err := m.r.Read(p)
	m.n -= int64(n)
	return n, err
}
