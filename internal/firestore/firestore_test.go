package firestore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

func TestTaskUpdates(t *testing.T) {
	title := "Dishes"
	status := model.StatusCompleted
	done := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		patch     model.TaskPatch
		wantPaths []string
	}{
		{"empty", model.TaskPatch{}, nil},
		{"title", model.TaskPatch{Title: &title}, []string{"title"}},
		{"complete", model.TaskPatch{Status: &status, CompletedAtSet: true, CompletedAt: &done}, []string{"status", "completedAt"}},
		{"clear completed", model.TaskPatch{CompletedAtSet: true}, []string{"completedAt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := taskUpdates(tt.patch)
			if len(got) != len(tt.wantPaths) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.wantPaths))
			}
			for i, u := range got {
				if u.Path != tt.wantPaths[i] {
					t.Errorf("path[%d] = %q, want %q", i, u.Path, tt.wantPaths[i])
				}
			}
		})
	}

	cleared := taskUpdates(model.TaskPatch{CompletedAtSet: true})
	if cleared[0].Value != nil {
		t.Errorf("cleared value = %v, want nil", cleared[0].Value)
	}
	statusValue := taskUpdates(model.TaskPatch{Status: &status})[0].Value
	if statusValue != "completed" {
		t.Errorf("status value = %v, want completed", statusValue)
	}
}

func TestSortSummaries(t *testing.T) {
	list := []model.HouseholdSummary{{Name: "zeta"}, {Name: "Alpha"}, {Name: "beta"}}
	sortSummaries(list)
	want := []string{"Alpha", "beta", "zeta"}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Name, name)
		}
	}
}

// emulatorStore connects to the Firestore emulator. Tests using it are
// skipped unless FIRESTORE_EMULATOR_HOST is set.
func emulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "chorely-test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewStore(client, slog.Default())
}

func TestEmulatorHouseholdJoin(t *testing.T) {
	s := emulatorStore(t)
	ctx := context.Background()
	owner := uuid.NewString()
	joiner := uuid.NewString()

	h, err := s.CreateHousehold(ctx, "Home", owner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { s.DeleteHousehold(context.Background(), h.ID) })

	if _, err := s.JoinHousehold(ctx, "BADCODE", joiner); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("bad code: err = %v, want not found", err)
	}

	got := make(chan []model.HouseholdSummary, 8)
	tok := s.ObserveHouseholds(joiner, func(list []model.HouseholdSummary, err error) {
		if err == nil {
			got <- list
		}
	})
	defer tok.Cancel()

	if _, err := s.JoinHousehold(ctx, h.InviteCode, joiner); err != nil {
		t.Fatalf("join: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case list := <-got:
			if len(list) == 1 && list[0].ID == h.ID {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for joined household")
		}
	}
}

func TestEmulatorTaskPatch(t *testing.T) {
	s := emulatorStore(t)
	ctx := context.Background()

	h, err := s.CreateHousehold(ctx, "Home", uuid.NewString())
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	t.Cleanup(func() { s.DeleteHousehold(context.Background(), h.ID) })

	due := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	task, err := s.CreateTask(ctx, h.ID, model.TaskItem{Title: "Dishes", Status: model.StatusBacklog, DueDate: due})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	status := model.StatusInProgress
	if err := s.UpdateTask(ctx, h.ID, task.ID, model.TaskPatch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateTask(ctx, h.ID, "missing", model.TaskPatch{Status: &status}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing: err = %v, want not found", err)
	}

	snap, err := s.sub(h.ID, tasksCollection).Doc(task.ID).Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored, err := decode(snap, setTaskID)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Status != model.StatusInProgress {
		t.Errorf("status = %q, want inProgress", stored.Status)
	}
	if stored.Title != "Dishes" {
		t.Errorf("title = %q, want Dishes", stored.Title)
	}
}

type fakeJob struct{ err error }

func (j fakeJob) Results() (*firestore.WriteResult, error) {
	if j.err != nil {
		return nil, j.err
	}
	return &firestore.WriteResult{}, nil
}

func TestFirstFailure(t *testing.T) {
	denied := errors.New("permission denied")
	tests := []struct {
		name string
		jobs []writeJob
		want error
	}{
		{"none", nil, nil},
		{"all ok", []writeJob{fakeJob{}, fakeJob{}}, nil},
		{"one failed", []writeJob{fakeJob{}, fakeJob{err: denied}, fakeJob{err: errors.New("later")}}, denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstFailure(tt.jobs); got != tt.want {
				t.Errorf("firstFailure = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmulatorDeleteHousehold(t *testing.T) {
	s := emulatorStore(t)
	ctx := context.Background()

	h, err := s.CreateHousehold(ctx, "Home", uuid.NewString())
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := s.CreateTag(ctx, h.ID, model.TagItem{Name: "Kitchen"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}

	if err := s.DeleteHousehold(ctx, h.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.household(h.ID).Get(ctx); !isNotFound(err) {
		t.Errorf("household get: err = %v, want not found", err)
	}
	refs, err := s.sub(h.ID, tagsCollection).DocumentRefs(ctx).GetAll()
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("tags left = %d, want 0", len(refs))
	}
}
