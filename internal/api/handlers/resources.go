// resources.go — HTTP handlers учебных ресурсов: загрузка, списки, карточка.
// Потоковая отдача (view/download) — stream.go.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/edushare/internal/api/errors"
	"github.com/bigkaa/edushare/internal/api/middleware"
	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/service"
)

// multipartOverhead — запас на заголовки и текстовые поля multipart поверх размера файла.
const multipartOverhead = 1 << 20

// multipartMemory — объём формы, хранимый в памяти (остальное — во временных файлах).
const multipartMemory = 32 << 20

// ResourcesHandler — обработчик endpoints /api/resource.
type ResourcesHandler struct {
	svc           *service.ResourceService
	files         *service.FileService
	maxUploadSize int64
	corsOrigin    string
	logger        *slog.Logger
}

// NewResourcesHandler создаёт обработчик ресурсов.
// corsOrigin — значение Access-Control-Allow-Origin для встраиваемого просмотра.
// maxUploadSize <= 0 — service.DefaultMaxUploadSize.
func NewResourcesHandler(
	svc *service.ResourceService,
	files *service.FileService,
	maxUploadSize int64,
	corsOrigin string,
	logger *slog.Logger,
) *ResourcesHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = service.DefaultMaxUploadSize
	}
	return &ResourcesHandler{
		svc:           svc,
		files:         files,
		maxUploadSize: maxUploadSize,
		corsOrigin:    corsOrigin,
		logger:        logger.With(slog.String("component", "resources_handler")),
	}
}

// listResponse — ответ списковых endpoints.
type listResponse struct {
	Success   bool              `json:"success"`
	Count     int               `json:"count"`
	Resources []*model.Resource `json:"resources"`
}

// subjectsResponse — ответ GET /api/resource/subjects.
type subjectsResponse struct {
	Success  bool     `json:"success"`
	Count    int      `json:"count"`
	Subjects []string `json:"subjects"`
}

// resourceResponse — ответ GET /api/resource/{id}.
type resourceResponse struct {
	Resource *model.Resource `json:"resource"`
}

// Upload обрабатывает POST /api/resource/upload.
// Multipart form: file, title, subject, description (все обязательны).
func (h *ResourcesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxUploadSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Обязательны поля file, title, subject и description")
		return
	}
	defer file.Close()

	result, err := h.svc.Upload(r.Context(), service.UploadParams{
		UserID:      subject,
		Reader:      file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Title:       r.FormValue("title"),
		Subject:     r.FormValue("subject"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки ресурса")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Get обрабатывает GET /api/resource/{id}.
func (h *ResourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceIDParam(r)
	if !ok {
		apierrors.NotFound(w, "Ресурс не найден")
		return
	}

	res, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения ресурса")
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse{Resource: res})
}

// All обрабатывает GET /api/resource/all.
func (h *ResourcesHandler) All(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListAll)
}

// Popular обрабатывает GET /api/resource/popular.
func (h *ResourcesHandler) Popular(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListPopular)
}

// Subjects обрабатывает GET /api/resource/subjects.
func (h *ResourcesHandler) Subjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.svc.ListSubjects(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка предметов")
		return
	}
	if subjects == nil {
		subjects = []string{}
	}
	writeJSON(w, http.StatusOK, subjectsResponse{Success: true, Count: len(subjects), Subjects: subjects})
}

// BySubject обрабатывает GET /api/resource/subject/{subject}.
func (h *ResourcesHandler) BySubject(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	h.writeList(w, r, func(ctx context.Context) ([]*model.Resource, error) {
		return h.svc.ListBySubject(ctx, subject)
	})
}

// MyUploads обрабатывает GET /api/resource/my-uploads.
func (h *ResourcesHandler) MyUploads(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	h.writeList(w, r, func(ctx context.Context) ([]*model.Resource, error) {
		return h.svc.MyUploads(ctx, userID)
	})
}

// MyDownloads обрабатывает GET /api/resource/my-downloads.
func (h *ResourcesHandler) MyDownloads(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	h.writeList(w, r, func(ctx context.Context) ([]*model.Resource, error) {
		return h.svc.MyDownloads(ctx, userID)
	})
}

func (h *ResourcesHandler) writeList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*model.Resource, error)) {
	resources, err := list(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка ресурсов")
		return
	}
	if resources == nil {
		resources = []*model.Resource{}
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(resources), Resources: resources})
}

// writeServiceError преобразует ошибку сервисного слоя в JSON-ответ.
func (h *ResourcesHandler) writeServiceError(w http.ResponseWriter, err error, internalMsg string) {
	var (
		uploadErr *service.UploadError
		quotaErr  *service.QuotaError
	)
	switch {
	case errors.As(err, &uploadErr):
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
	case errors.As(err, &quotaErr):
		apierrors.QuotaNotMet(w, quotaErr.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrIdentityRequired):
		apierrors.Unauthorized(w, "Требуется идентификация пользователя")
	case errors.Is(err, service.ErrNotInitialized):
		apierrors.NotInitialized(w, "Хранилище файлов ещё не подключено")
	default:
		h.logger.Error(internalMsg, slog.String("error", err.Error()))
		apierrors.InternalError(w, internalMsg)
	}
}

// writeJSON отправляет JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
