// stream.go — потоковая отдача содержимого ресурса с поддержкой Range.
//
// Ответы:
//   - 200 — весь объект, Content-Length = размер
//   - 206 — диапазон, Content-Range: bytes s-e/N
//   - 416 — невыполнимый диапазон, Content-Range: bytes */N, без тела
//   - 404 — нет ресурса или объекта, без тела
//
// Некорректно оформленный заголовок Range игнорируется (отдаётся весь объект).
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edushare/internal/api/middleware"
	"github.com/bigkaa/edushare/internal/httprange"
	"github.com/bigkaa/edushare/internal/service"
	"github.com/bigkaa/edushare/internal/storage"
)

var (
	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edu_streams_total",
		Help: "Потоковые ответы по типу (view/download) и статусу.",
	}, []string{"kind", "status"})

	streamBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edu_stream_bytes_total",
		Help: "Отданные клиентам байты содержимого.",
	}, []string{"kind"})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edu_active_streams",
		Help: "Количество потоков, передаваемых в данный момент.",
	})
)

// Тип отдачи: inline-просмотр или скачивание вложением.
const (
	streamView     = "view"
	streamDownload = "download"
)

// View обрабатывает GET /api/resource/view/{id}.
// Встраиваемый просмотр: inline, разрешён кросс-доменный доступ.
func (h *ResourcesHandler) View(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, streamView)
}

// Download обрабатывает GET /api/resource/download/{id}.
// Требует идентификатор пользователя; при успехе фоном обновляет счётчики.
func (h *ResourcesHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if err := h.svc.CheckDownloadQuota(r.Context(), userID); err != nil {
		streamsTotal.WithLabelValues(streamDownload, "quota").Inc()
		h.writeServiceError(w, err, "Ошибка проверки квоты скачивания")
		return
	}
	h.stream(w, r, streamDownload)
}

func (h *ResourcesHandler) stream(w http.ResponseWriter, r *http.Request, kind string) {
	ctx := r.Context()

	id, ok := resourceIDParam(r)
	if !ok {
		h.streamNotFound(w, kind)
		return
	}

	res, info, err := h.svc.Locate(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.streamNotFound(w, kind)
			return
		}
		streamsTotal.WithLabelValues(kind, "error").Inc()
		h.writeServiceError(w, err, "Ошибка получения файла")
		return
	}

	size := info.Size
	window, err := httprange.Parse(r.Header.Get("Range"), size)
	if err != nil {
		streamsTotal.WithLabelValues(kind, "416").Inc()
		w.Header().Set("Content-Range", httprange.UnsatisfiedRange(size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var rng *storage.ReadRange
	if window != nil {
		rng = &storage.ReadRange{Start: window.Start, EndExclusive: window.EndExclusive()}
	}

	body, err := h.files.OpenDownloadStream(ctx, res.ObjectID(), rng)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			h.streamNotFound(w, kind)
			return
		}
		streamsTotal.WithLabelValues(kind, "error").Inc()
		h.writeServiceError(w, err, "Ошибка открытия файла")
		return
	}
	defer body.Close()

	if kind == streamDownload {
		h.svc.DispatchDownload(ctx, res.ID, middleware.SubjectFromContext(ctx))
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}

	hdr := w.Header()
	hdr.Set("Accept-Ranges", "bytes")
	hdr.Set("Content-Type", contentType)
	disposition := "attachment"
	if kind == streamView {
		disposition = "inline"
		hdr.Set("Cross-Origin-Resource-Policy", "cross-origin")
		if h.corsOrigin != "" {
			hdr.Set("Access-Control-Allow-Origin", h.corsOrigin)
		}
	}
	hdr.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": res.FileName}))

	status := http.StatusOK
	length := size
	if window != nil {
		status = http.StatusPartialContent
		length = window.ChunkLength
		hdr.Set("Content-Range", window.ContentRange(size))
	}
	hdr.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	activeStreams.Inc()
	n, err := io.Copy(w, body)
	activeStreams.Dec()
	streamBytesTotal.WithLabelValues(kind).Add(float64(n))

	if err != nil {
		if ctx.Err() != nil {
			streamsTotal.WithLabelValues(kind, "aborted").Inc()
			h.logger.Debug("Клиент прервал передачу",
				slog.String("resource_id", res.ID),
				slog.Int64("sent", n),
				slog.Int64("expected", length),
			)
			return
		}
		streamsTotal.WithLabelValues(kind, "error").Inc()
		h.logger.Warn("Ошибка передачи файла",
			slog.String("resource_id", res.ID),
			slog.Int64("sent", n),
			slog.String("error", err.Error()),
		)
		return
	}
	streamsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

// streamNotFound отвечает 404 без тела.
func (h *ResourcesHandler) streamNotFound(w http.ResponseWriter, kind string) {
	streamsTotal.WithLabelValues(kind, "404").Inc()
	w.WriteHeader(http.StatusNotFound)
}
