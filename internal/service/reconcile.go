// reconcile.go — фоновая сверка метаданных ресурсов с хранилищем.
//
// Обнаруживает проблемы:
//   - missing_object: строка ресурса есть, объекта в хранилище нет
//   - orphaned_object: объект в хранилище без строки ресурса
//   - size_mismatch: размер объекта не совпадает с file_size
//
// Объекты, записанные позже начала прогона минус OrphanGracePeriod,
// в сироты не попадают: их строка может ещё не быть сохранена загрузкой.
//
// Только обнаружение: ничего не удаляется автоматически.
// Запускается с периодическим тикером (EDU_RECONCILE_INTERVAL) и по запросу.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edushare/internal/repository"
	"github.com/bigkaa/edushare/internal/storage"
)

var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edu_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edu_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edu_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// OrphanGracePeriod — возраст объекта, после которого отсутствие строки
// ресурса считается расхождением.
const OrphanGracePeriod = 5 * time.Minute

// IssueType — тип найденного расхождения.
type IssueType string

const (
	IssueMissingObject  IssueType = "missing_object"
	IssueOrphanedObject IssueType = "orphaned_object"
	IssueSizeMismatch   IssueType = "size_mismatch"
)

// ReconcileIssue — одно расхождение.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	ResourceID  string    `json:"resource_id,omitempty"`
	ObjectID    string    `json:"object_id"`
	Description string    `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	MissingObjects  int `json:"missing_objects"`
	OrphanedObjects int `json:"orphaned_objects"`
	SizeMismatches  int `json:"size_mismatches"`
	OK              int `json:"ok"`
	// RecentObjects — объекты без строки, пропущенные как слишком свежие
	RecentObjects int `json:"recent_objects"`
}

// ReconcileResult — результат одного прогона.
type ReconcileResult struct {
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	ResourcesChecked int              `json:"resources_checked"`
	ObjectsChecked   int              `json:"objects_checked"`
	Issues           []ReconcileIssue `json:"issues"`
	Summary          ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	files     *FileService
	resources repository.ResourceRepository
	interval  time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	files *FileService,
	resources repository.ResourceRepository,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		files:     files,
		resources: resources,
		interval:  interval,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину. interval <= 0 — только запуск по запросу.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Периодическая reconciliation отключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновую горутину и ждёт её завершения.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rs.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один прогон сверки.
// Если прогон уже идёт, возвращает nil, true, nil.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	if !rs.files.Ready() {
		return nil, false, ErrNotInitialized
	}

	startedAt := time.Now().UTC()
	rs.logger.Info("Reconciliation начата")

	result, err := rs.reconcile(ctx, startedAt.Add(-OrphanGracePeriod))
	if err != nil {
		return nil, false, err
	}

	result.StartedAt = startedAt
	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range result.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
		rs.logger.Warn("Обнаружено расхождение",
			slog.String("type", string(issue.Type)),
			slog.String("resource_id", issue.ResourceID),
			slog.String("object_id", issue.ObjectID),
		)
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("resources_checked", result.ResourcesChecked),
		slog.Int("objects_checked", result.ObjectsChecked),
		slog.Int("issues", len(result.Issues)),
		slog.Int("ok", result.Summary.OK),
		slog.Duration("duration", duration),
	)

	return result, false, nil
}

// reconcile сверяет строки и объекты. Объекты без строки, изменённые
// после orphanCutoff, учитываются в RecentObjects.
func (rs *ReconcileService) reconcile(ctx context.Context, orphanCutoff time.Time) (*ReconcileResult, error) {
	kind := rs.files.Kind()

	all, err := rs.resources.List(ctx)
	if err != nil {
		return nil, err
	}

	// Ресурсы другого варианта хранилища не проверяются
	referenced := make(map[string]string)
	result := &ReconcileResult{Issues: make([]ReconcileIssue, 0)}
	for _, res := range all {
		if res.Storage != kind {
			continue
		}
		result.ResourcesChecked++
		referenced[res.ObjectID()] = res.ID

		info, statErr := rs.files.Stat(ctx, res.ObjectID())
		switch {
		case errors.Is(statErr, storage.ErrObjectNotFound):
			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueMissingObject,
				ResourceID:  res.ID,
				ObjectID:    res.ObjectID(),
				Description: "Ресурс ссылается на отсутствующий объект",
			})
			result.Summary.MissingObjects++
		case statErr != nil:
			return nil, statErr
		case info.Size != res.FileSize:
			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				ResourceID:  res.ID,
				ObjectID:    res.ObjectID(),
				Description: "Размер объекта не совпадает с метаданными",
			})
			result.Summary.SizeMismatches++
		default:
			result.Summary.OK++
		}
	}

	lister, ok := rs.files.Lister()
	if !ok {
		return result, nil
	}

	err = lister.Walk(ctx, func(obj storage.ListedObject) error {
		result.ObjectsChecked++
		if _, found := referenced[obj.ID]; found {
			return nil
		}
		if obj.Modified.After(orphanCutoff) {
			result.Summary.RecentObjects++
			return nil
		}
		result.Issues = append(result.Issues, ReconcileIssue{
			Type:        IssueOrphanedObject,
			ObjectID:    obj.ID,
			Description: "Объект в хранилище без метаданных ресурса",
		})
		result.Summary.OrphanedObjects++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
