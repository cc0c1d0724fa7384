package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/edushare/internal/domain/model"
	"github.com/bigkaa/edushare/internal/storage/disk"
)

func TestReconcileRunOnce_NoIssues(t *testing.T) {
	env := newResourceTestEnv(t, ResourceServiceConfig{})
	env.upload(t, "u1", "good.txt", []byte("test data"))

	rs := NewReconcileService(env.files, env.resources, time.Hour, testLogger())
	result, skipped, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if skipped {
		t.Fatal("Reconciliation пропущена")
	}
	if len(result.Issues) != 0 {
		t.Errorf("Найдено %d проблем, ожидалось 0: %+v", len(result.Issues), result.Issues)
	}
	if result.Summary.OK != 1 || result.ResourcesChecked != 1 || result.ObjectsChecked != 1 {
		t.Errorf("Summary = %+v, resources=%d objects=%d", result.Summary, result.ResourcesChecked, result.ObjectsChecked)
	}
}

func TestReconcileRunOnce_DetectsIssues(t *testing.T) {
	env := newResourceTestEnv(t, ResourceServiceConfig{})
	ctx := context.Background()

	missing := env.upload(t, "u1", "missing.txt", []byte("aaa")).Resource
	resized := env.upload(t, "u1", "resized.txt", []byte("bbb")).Resource

	if err := os.Remove(missing.FilePath); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	if err := os.WriteFile(resized.FilePath, []byte("bbbbbb"), 0o640); err != nil {
		t.Fatalf("перезапись: %v", err)
	}

	store := env.files.current().(*disk.Store)
	orphanPath := filepath.Join(store.BaseDir(), "orphan.txt")
	if err := os.WriteFile(orphanPath, []byte("x"), 0o640); err != nil {
		t.Fatalf("создание сироты: %v", err)
	}
	old := time.Now().Add(-2 * OrphanGracePeriod)
	if err := os.Chtimes(orphanPath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	rs := NewReconcileService(env.files, env.resources, time.Hour, testLogger())
	result, _, err := rs.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	want := map[IssueType]string{
		IssueMissingObject:  missing.FilePath,
		IssueSizeMismatch:   resized.FilePath,
		IssueOrphanedObject: orphanPath,
	}
	for _, issue := range result.Issues {
		if path, ok := want[issue.Type]; ok && path == issue.ObjectID {
			delete(want, issue.Type)
		}
	}
	if len(want) != 0 {
		t.Errorf("не найдены проблемы: %v (получено %+v)", want, result.Issues)
	}
	if result.Summary.MissingObjects != 1 || result.Summary.SizeMismatches != 1 || result.Summary.OrphanedObjects != 1 {
		t.Errorf("Summary = %+v", result.Summary)
	}

	// Сверка ничего не удаляет
	if _, err := os.Stat(orphanPath); err != nil {
		t.Errorf("объект-сирота удалён: %v", err)
	}
}

func TestReconcileRunOnce_SkipsOtherStorageKind(t *testing.T) {
	env := newResourceTestEnv(t, ResourceServiceConfig{})
	ctx := context.Background()

	if err := env.resources.Create(ctx, &model.Resource{
		ID: "b7e0f7a6-0d1e-4c61-9a59-5d2b8c1f0e11", Storage: model.StorageBlob, BlobKey: "resources/x",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rs := NewReconcileService(env.files, env.resources, time.Hour, testLogger())
	result, _, err := rs.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.ResourcesChecked != 0 || len(result.Issues) != 0 {
		t.Errorf("ресурс blob проверен в режиме disk: %+v", result)
	}
}

func TestReconcileRunOnce_NotInitialized(t *testing.T) {
	rs := NewReconcileService(NewFileService(testLogger()), newFakeResourceRepo(), time.Hour, testLogger())
	if _, _, err := rs.RunOnce(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ошибка = %v, ожидается ErrNotInitialized", err)
	}
	if rs.IsInProgress() {
		t.Error("IsInProgress = true после завершения")
	}
}

func TestReconcileStartStop(t *testing.T) {
	env := newResourceTestEnv(t, ResourceServiceConfig{})
	rs := NewReconcileService(env.files, env.resources, 10*time.Millisecond, testLogger())

	rs.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	rs.Stop()

	// Отключённая периодическая сверка: Stop без Start не блокирует
	NewReconcileService(env.files, env.resources, 0, testLogger()).Stop()
}

func TestReconcileRunOnce_FreshObjectNotOrphaned(t *testing.T) {
	env := newResourceTestEnv(t, ResourceServiceConfig{})
	store := env.files.current().(*disk.Store)

	// Байты загрузки уже записаны, строка ресурса ещё не сохранена.
	fresh := filepath.Join(store.BaseDir(), "in-flight.pdf")
	if err := os.WriteFile(fresh, []byte("upload"), 0o640); err != nil {
		t.Fatalf("запись: %v", err)
	}

	rs := NewReconcileService(env.files, env.resources, time.Hour, testLogger())
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Summary.OrphanedObjects != 0 || len(result.Issues) != 0 {
		t.Errorf("свежий объект помечен сиротой: %+v", result.Issues)
	}
	if result.Summary.RecentObjects != 1 || result.ObjectsChecked != 1 {
		t.Errorf("Summary = %+v, objects=%d; ожидается recent_objects=1", result.Summary, result.ObjectsChecked)
	}

	old := time.Now().Add(-OrphanGracePeriod - time.Minute)
	if err := os.Chtimes(fresh, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	result, _, err = rs.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Summary.OrphanedObjects != 1 || result.Summary.RecentObjects != 0 {
		t.Errorf("после grace-периода: Summary = %+v, ожидается orphaned_objects=1", result.Summary)
	}
}
