// counters.go — фоновое обновление счётчиков после отдачи файла.
// Ответ клиенту не ждёт обновления, ошибки только логируются.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var counterFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "edu_counter_update_failures_total",
	Help: "Ошибки фонового обновления счётчиков по цели.",
}, []string{"target"})

// DefaultCounterTimeout — таймаут одной фоновой задачи по умолчанию.
const DefaultCounterTimeout = 5 * time.Second

// CounterDispatcher запускает фоновые задачи учёта.
// Задачи отвязаны от отмены контекста запроса, но ограничены таймаутом.
type CounterDispatcher struct {
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewCounterDispatcher создаёт диспетчер. timeout <= 0 — DefaultCounterTimeout.
func NewCounterDispatcher(timeout time.Duration, logger *slog.Logger) *CounterDispatcher {
	if timeout <= 0 {
		timeout = DefaultCounterTimeout
	}
	return &CounterDispatcher{
		timeout: timeout,
		logger:  logger.With(slog.String("component", "counter_dispatcher")),
	}
}

// Go запускает fn в отдельной горутине.
// Значения контекста (request id и т.п.) сохраняются, отмена — нет.
func (d *CounterDispatcher) Go(ctx context.Context, op string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := fn(taskCtx); err != nil {
			d.logger.Warn("Фоновое обновление счётчиков завершилось с ошибкой",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait ждёт завершения запущенных задач или отмены ctx.
func (d *CounterDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
