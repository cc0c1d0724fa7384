// cache.go — LRU-кэш метаданных ресурсов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edushare/internal/domain/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edu_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных ресурсов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edu_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных ресурсов.",
	})
)

// CacheService — кэш ресурсов по id.
// Счётчик скачиваний в кэше может отставать на TTL; расположение
// объекта неизменно, поэтому потоковая отдача от кэша не зависит.
type CacheService struct {
	cache *expirable.LRU[string, model.Resource]
}

// NewCacheService создаёт LRU-кэш.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{
		cache: expirable.NewLRU[string, model.Resource](maxSize, nil, ttl),
	}
}

// Get возвращает копию ресурса из кэша.
func (c *CacheService) Get(id string) (*model.Resource, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Set добавляет или обновляет запись (хранится копия).
func (c *CacheService) Set(res *model.Resource) {
	c.cache.Add(res.ID, *res)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(id string) {
	c.cache.Remove(id)
}

// Len возвращает число записей.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
