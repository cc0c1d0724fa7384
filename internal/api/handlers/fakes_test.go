package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/edushare/internal/api/middleware"
	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/repository"
	"github.com/bigkaa/edushare/internal/service"
	"github.com/bigkaa/edushare/internal/storage/disk"
)

const testUserHeader = "X-User-Id"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memResources — in-memory ResourceRepository.
type memResources struct {
	mu    sync.Mutex
	items map[string]*model.Resource
}

func (m *memResources) Create(_ context.Context, r *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *memResources) GetByID(_ context.Context, id string) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResources) all(keep func(*model.Resource) bool) []*model.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Resource
	for _, r := range m.items {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memResources) List(context.Context) ([]*model.Resource, error) {
	return m.all(func(*model.Resource) bool { return true }), nil
}

func (m *memResources) ListPopular(_ context.Context, limit int) ([]*model.Resource, error) {
	out := m.all(func(*model.Resource) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].DownloadCount > out[j].DownloadCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memResources) ListSubjects(context.Context) ([]string, error) {
	var subjects []string
	for _, r := range m.all(func(*model.Resource) bool { return true }) {
		if !slices.Contains(subjects, r.Subject) {
			subjects = append(subjects, r.Subject)
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (m *memResources) ListBySubject(_ context.Context, subject string) ([]*model.Resource, error) {
	return m.all(func(r *model.Resource) bool { return strings.EqualFold(r.Subject, subject) }), nil
}

func (m *memResources) ListByUploader(_ context.Context, userID string) ([]*model.Resource, error) {
	return m.all(func(r *model.Resource) bool { return r.UploadedBy == userID }), nil
}

func (m *memResources) IncrementDownloads(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.DownloadCount++
	return nil
}

// memUsers — in-memory UserRepository.
type memUsers struct {
	mu       sync.Mutex
	counters map[string]*model.UserCounters
}

func (m *memUsers) entry(userID string) *model.UserCounters {
	c, ok := m.counters[userID]
	if !ok {
		c = &model.UserCounters{UserID: userID}
		m.counters[userID] = c
	}
	return c
}

func (m *memUsers) IncrementUploads(_ context.Context, userID string) (*model.UserCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.entry(userID)
	c.UploadCount++
	cp := *c
	return &cp, nil
}

func (m *memUsers) IncrementDownloads(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID).DownloadCount++
	return nil
}

func (m *memUsers) GetCounters(_ context.Context, userID string) (*model.UserCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.entry(userID)
	return &cp, nil
}

// memDownloads — in-memory DownloadRepository.
type memDownloads struct {
	mu        sync.Mutex
	resources *memResources
	history   map[string][]string
}

func (m *memDownloads) Record(_ context.Context, userID, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append(m.history[userID], resourceID)
	return nil
}

func (m *memDownloads) ListResourcesByUser(ctx context.Context, userID string) ([]*model.Resource, error) {
	m.mu.Lock()
	ids := slices.Clone(m.history[userID])
	m.mu.Unlock()

	var out []*model.Resource
	seen := make(map[string]bool)
	for i := len(ids) - 1; i >= 0; i-- {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		if r, err := m.resources.GetByID(ctx, ids[i]); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// handlerTestEnv — ResourcesHandler поверх disk-хранилища и in-memory репозиториев.
type handlerTestEnv struct {
	files      *service.FileService
	resources  *memResources
	users      *memUsers
	downloads  *memDownloads
	dispatcher *service.CounterDispatcher
	svc        *service.ResourceService
	router     http.Handler
}

func newHandlerTestEnv(t *testing.T, cfg service.ResourceServiceConfig) *handlerTestEnv {
	t.Helper()

	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = []string{"pdf", "doc", "docx", "ppt", "pptx", "txt"}
	}

	store, err := disk.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания disk.Store: %v", err)
	}
	files := service.NewFileService(testLogger())
	if err := files.Init(store); err != nil {
		t.Fatalf("Init: %v", err)
	}

	resources := &memResources{items: make(map[string]*model.Resource)}
	env := &handlerTestEnv{
		files:      files,
		resources:  resources,
		users:      &memUsers{counters: make(map[string]*model.UserCounters)},
		downloads:  &memDownloads{resources: resources, history: make(map[string][]string)},
		dispatcher: service.NewCounterDispatcher(time.Second, testLogger()),
	}
	env.svc = service.NewResourceService(files, env.resources, env.users, env.downloads,
		service.NewCacheService(100, time.Minute), env.dispatcher, cfg, testLogger())

	h := NewResourcesHandler(env.svc, files, cfg.MaxUploadSize, "https://edu.example", testLogger())

	r := chi.NewRouter()
	r.Use(middleware.HeaderIdentity(testUserHeader))
	r.Route("/api/resource", func(r chi.Router) {
		r.Get("/view/{id}", h.View)
		r.Get("/all", h.All)
		r.Get("/popular", h.Popular)
		r.Get("/subjects", h.Subjects)
		r.Get("/subject/{subject}", h.BySubject)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIdentity)
			r.Get("/download/{id}", h.Download)
			r.Post("/upload", h.Upload)
			r.Get("/my-uploads", h.MyUploads)
			r.Get("/my-downloads", h.MyDownloads)
		})
		r.Get("/{id}", h.Get)
	})
	env.router = r

	return env
}

// seed загружает ресурс напрямую через сервис.
func (e *handlerTestEnv) seed(t *testing.T, userID, name, subject string, content []byte) *model.Resource {
	t.Helper()
	result, err := e.svc.Upload(context.Background(), service.UploadParams{
		UserID:      userID,
		Reader:      bytes.NewReader(content),
		FileName:    name,
		Size:        int64(len(content)),
		Title:       "Материал " + name,
		Subject:     subject,
		Description: "Описание",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return result.Resource
}

// do выполняет запрос от имени userID (пустой — анонимно).
func (e *handlerTestEnv) do(req *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// waitCounters дожидается фоновых обновлений счётчиков.
func (e *handlerTestEnv) waitCounters(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("dispatcher.Wait: %v", err)
	}
}

// multipartUpload собирает multipart-запрос загрузки. Пустое fileName — без файла.
func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("запись файла: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/resource/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// patterned возвращает n байт с различимым содержимым.
func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
