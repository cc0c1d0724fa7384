package service

import (
	"testing"
	"time"

	"github.com/bigkaa/edushare/internal/domain/model"
)

func TestCacheService_GetSet(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)

	if _, ok := cache.Get("r-1"); ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	res := &model.Resource{ID: "r-1", Title: "Матанализ", FileName: "lecture.pdf"}
	cache.Set(res)

	got, ok := cache.Get("r-1")
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got.Title != "Матанализ" || got.FileName != "lecture.pdf" {
		t.Errorf("получено %+v", got)
	}

	// В кэше хранится копия
	res.Title = "изменено"
	got.DownloadCount = 99
	again, _ := cache.Get("r-1")
	if again.Title != "Матанализ" || again.DownloadCount != 0 {
		t.Errorf("кэш изменён через внешнюю ссылку: %+v", again)
	}
}

func TestCacheService_Delete(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)
	cache.Set(&model.Resource{ID: "delete-me"})

	cache.Delete("delete-me")

	if _, ok := cache.Get("delete-me"); ok {
		t.Fatal("ожидался cache miss после Delete")
	}
}

func TestCacheService_TTLExpiration(t *testing.T) {
	cache := NewCacheService(100, 50*time.Millisecond)
	cache.Set(&model.Resource{ID: "ttl"})

	time.Sleep(120 * time.Millisecond)

	if _, ok := cache.Get("ttl"); ok {
		t.Fatal("ожидался cache miss после истечения TTL")
	}
}

func TestCacheService_Eviction(t *testing.T) {
	cache := NewCacheService(2, 5*time.Minute)
	cache.Set(&model.Resource{ID: "a"})
	cache.Set(&model.Resource{ID: "b"})
	cache.Set(&model.Resource{ID: "c"})

	if cache.Len() != 2 {
		t.Errorf("Len = %d, ожидается 2", cache.Len())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("самая старая запись должна быть вытеснена")
	}
}
