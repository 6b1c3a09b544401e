package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/model"
	"github.com/sakif/collab-playground/internal/repository"
)

// newTestDB gives each test its own in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestRun(t *testing.T, db *DB, run *model.Run) *model.Run {
	t.Helper()
	if err := db.Create(context.Background(), run); err != nil {
		t.Fatalf("failed to create test run: %v", err)
	}
	return run
}

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	run := &model.Run{
		Language:   "python",
		Status:     "success",
		DurationMs: 42,
		CodeBytes:  14,
	}

	if err := db.Create(context.Background(), run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if run.ID == "" {
		t.Error("Create() should assign an ID")
	}
	if run.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}
}

func TestCreate_KeepsGivenID(t *testing.T) {
	db := newTestDB(t)

	run := createTestRun(t, db, &model.Run{ID: "6f1c1f8e-run", Language: "java", Status: "timeout", ExitCode: -1})

	got, err := db.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ID != "6f1c1f8e-run" {
		t.Errorf("ID = %q, want %q", got.ID, "6f1c1f8e-run")
	}
	if got.Status != "timeout" || got.ExitCode != -1 {
		t.Errorf("got status %q exit %d, want timeout -1", got.Status, got.ExitCode)
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	createTestRun(t, db, &model.Run{ID: "dup", Language: "java", Status: "success"})

	if err := db.Create(context.Background(), &model.Run{ID: "dup", Language: "java", Status: "success"}); err == nil {
		t.Error("Create() with a duplicate ID should fail")
	}
}

func TestGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestRun(t, db, &model.Run{
		SessionID:  "room-1",
		Language:   "python",
		Status:     "runtime-error",
		ExitCode:   1,
		DurationMs: 120,
		CodeBytes:  30,
	})

	got, err := db.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.SessionID != "room-1" || got.Language != "python" || got.Status != "runtime-error" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.ExitCode != 1 || got.DurationMs != 120 || got.CodeBytes != 30 {
		t.Errorf("GetByID() numbers = %d/%d/%d", got.ExitCode, got.DurationMs, got.CodeBytes)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		lang := "java"
		if i%2 == 0 {
			lang = "python"
		}
		createTestRun(t, db, &model.Run{
			ID:        fmt.Sprintf("run-%d", i),
			SessionID: "room",
			Language:  lang,
			Status:    "success",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	createTestRun(t, db, &model.Run{ID: "solo", Language: "java", Status: "success", CreatedAt: base})

	tests := []struct {
		name    string
		opts    repository.ListOptions
		wantIDs []string
	}{
		{
			name:    "newest first",
			opts:    repository.ListOptions{Limit: 3},
			wantIDs: []string{"run-4", "run-3", "run-2"},
		},
		{
			name:    "offset",
			opts:    repository.ListOptions{Limit: 2, Offset: 3},
			wantIDs: []string{"run-1", "solo"},
		},
		{
			name:    "language filter",
			opts:    repository.ListOptions{Language: "python"},
			wantIDs: []string{"run-4", "run-2", "run-0"},
		},
		{
			name:    "session filter",
			opts:    repository.ListOptions{SessionID: "room", Language: "java"},
			wantIDs: []string{"run-3", "run-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.List(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("List() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	db := newTestDB(t)
	for i := range 25 {
		createTestRun(t, db, &model.Run{ID: fmt.Sprintf("r%02d", i), Language: "java", Status: "success"})
	}

	runs, err := db.List(context.Background(), repository.ListOptions{Limit: 0, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 20 {
		t.Errorf("List() default page = %d runs, want 20", len(runs))
	}

	runs, err = db.List(context.Background(), repository.ListOptions{Limit: 1000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 25 {
		t.Errorf("List() = %d runs, want 25", len(runs))
	}
}
