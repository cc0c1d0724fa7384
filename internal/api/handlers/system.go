// system.go — обработчик GET /api/info (информация о сервисе).
// Публичный endpoint для мониторинга и отладки развёртывания.
package handlers

import (
	"net/http"

	"github.com/bigkaa/edushare/internal/config"
	"github.com/bigkaa/edushare/internal/service"
)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg   *config.Config
	files *service.FileService
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, files *service.FileService) *SystemHandler {
	return &SystemHandler{cfg: cfg, files: files}
}

// infoResponse — ответ GET /api/info.
type infoResponse struct {
	Service            string   `json:"service"`
	ServiceID          string   `json:"service_id"`
	Version            string   `json:"version"`
	StorageMode        string   `json:"storage_mode"`
	FileService        string   `json:"file_service"`
	MaxUploadSize      int64    `json:"max_upload_size"`
	AllowedExtensions  []string `json:"allowed_extensions"`
	DownloadMinUploads int      `json:"download_min_uploads"`
}

// GetInfo обрабатывает GET /api/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Service:            serviceName,
		ServiceID:          h.cfg.ServiceID,
		Version:            config.Version,
		StorageMode:        h.cfg.StorageMode,
		FileService:        string(h.files.State()),
		MaxUploadSize:      h.cfg.MaxUploadSize,
		AllowedExtensions:  h.cfg.AllowedExtensions,
		DownloadMinUploads: h.cfg.DownloadMinUploads,
	})
}
