package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/repository"
)

// testLogger — логгер, пропускающий только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeResourceRepo — in-memory ResourceRepository.
type fakeResourceRepo struct {
	mu        sync.Mutex
	items     map[string]*model.Resource
	createErr error
}

func newFakeResourceRepo() *fakeResourceRepo {
	return &fakeResourceRepo{items: make(map[string]*model.Resource)}
}

func (f *fakeResourceRepo) Create(_ context.Context, r *model.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.items[r.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	f.items[r.ID] = &cp
	return nil
}

func (f *fakeResourceRepo) GetByID(_ context.Context, id string) (*model.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeResourceRepo) filter(keep func(*model.Resource) bool) []*model.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Resource, 0)
	for _, r := range f.items {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeResourceRepo) List(_ context.Context) ([]*model.Resource, error) {
	return f.filter(func(*model.Resource) bool { return true }), nil
}

func (f *fakeResourceRepo) ListPopular(_ context.Context, limit int) ([]*model.Resource, error) {
	out := f.filter(func(*model.Resource) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].DownloadCount > out[j].DownloadCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeResourceRepo) ListSubjects(_ context.Context) ([]string, error) {
	var subjects []string
	for _, r := range f.filter(func(*model.Resource) bool { return true }) {
		if !slices.Contains(subjects, r.Subject) {
			subjects = append(subjects, r.Subject)
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (f *fakeResourceRepo) ListBySubject(_ context.Context, subject string) ([]*model.Resource, error) {
	return f.filter(func(r *model.Resource) bool { return strings.EqualFold(r.Subject, subject) }), nil
}

func (f *fakeResourceRepo) ListByUploader(_ context.Context, userID string) ([]*model.Resource, error) {
	return f.filter(func(r *model.Resource) bool { return r.UploadedBy == userID }), nil
}

func (f *fakeResourceRepo) IncrementDownloads(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.DownloadCount++
	return nil
}

// fakeUserRepo — in-memory UserRepository.
type fakeUserRepo struct {
	mu       sync.Mutex
	counters map[string]*model.UserCounters
	incErr   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{counters: make(map[string]*model.UserCounters)}
}

func (f *fakeUserRepo) entry(userID string) *model.UserCounters {
	c, ok := f.counters[userID]
	if !ok {
		c = &model.UserCounters{UserID: userID}
		f.counters[userID] = c
	}
	return c
}

func (f *fakeUserRepo) IncrementUploads(_ context.Context, userID string) (*model.UserCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return nil, f.incErr
	}
	c := f.entry(userID)
	c.UploadCount++
	cp := *c
	return &cp, nil
}

func (f *fakeUserRepo) IncrementDownloads(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	f.entry(userID).DownloadCount++
	return nil
}

func (f *fakeUserRepo) GetCounters(_ context.Context, userID string) (*model.UserCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[userID]; ok {
		cp := *c
		return &cp, nil
	}
	return &model.UserCounters{UserID: userID}, nil
}

// fakeDownloadRepo — in-memory DownloadRepository.
type fakeDownloadRepo struct {
	mu        sync.Mutex
	resources *fakeResourceRepo
	history   map[string][]string
}

func newFakeDownloadRepo(resources *fakeResourceRepo) *fakeDownloadRepo {
	return &fakeDownloadRepo{resources: resources, history: make(map[string][]string)}
}

func (f *fakeDownloadRepo) Record(ctx context.Context, userID, resourceID string) error {
	if _, err := f.resources.GetByID(ctx, resourceID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[userID] = append(f.history[userID], resourceID)
	return nil
}

func (f *fakeDownloadRepo) ListResourcesByUser(ctx context.Context, userID string) ([]*model.Resource, error) {
	f.mu.Lock()
	ids := slices.Clone(f.history[userID])
	f.mu.Unlock()

	out := make([]*model.Resource, 0)
	seen := make(map[string]bool)
	for i := len(ids) - 1; i >= 0; i-- {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		if r, err := f.resources.GetByID(ctx, ids[i]); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

var errBoom = errors.New("boom")
