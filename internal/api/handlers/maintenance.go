// maintenance.go — обработчик POST /api/maintenance/reconcile.
// Делегирует сверку в ReconcileService.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/edushare/internal/api/errors"
	"github.com/bigkaa/edushare/internal/service"
)

// ReconcileRunner — интерфейс запуска reconciliation.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один прогон; второй результат — "уже выполняется".
	RunOnce(ctx context.Context) (*service.ReconcileResult, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Reconcile обрабатывает POST /api/maintenance/reconcile.
// Синхронный прогон сверки. Если сверка уже идёт — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, inProgress, err := h.reconciler.RunOnce(r.Context())
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}
	if err != nil {
		if errors.Is(err, service.ErrNotInitialized) {
			apierrors.NotInitialized(w, "Хранилище файлов ещё не подключено")
			return
		}
		h.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка reconciliation")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
