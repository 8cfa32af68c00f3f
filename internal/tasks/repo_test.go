package tasks

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// exerciseRepository runs the behaviour every Repository must share.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		list, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list error: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Fatalf("expected empty non-nil list, got %#v", list)
		}
	})

	t.Run("create validates", func(t *testing.T) {
		_, err := repo.Create(ctx, NewTask{Title: "", Status: StatusPending, DueDateTime: time.Now()})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		_, err = repo.Create(ctx, NewTask{Title: "x", Status: "done", DueDateTime: time.Now()})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for bad status, got %v", err)
		}
		list, _ := repo.List(ctx)
		if len(list) != 0 {
			t.Fatalf("invalid creates must not insert, got %d rows", len(list))
		}
	})

	due := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)
	desc := "with description"
	var first, second Task

	t.Run("create and list", func(t *testing.T) {
		var err error
		first, err = repo.Create(ctx, NewTask{Title: "  first  ", Description: &desc, Status: StatusPending, DueDateTime: due})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}
		if first.ID == 0 || first.Title != "first" || first.Status != StatusPending {
			t.Fatalf("bad first task: %+v", first)
		}
		if first.Description == nil || *first.Description != desc {
			t.Fatalf("description not stored: %+v", first.Description)
		}
		if !first.DueDateTime.Equal(due) {
			t.Fatalf("due date mismatch: %v != %v", first.DueDateTime, due)
		}
		if first.CreatedAt.IsZero() || first.UpdatedAt != nil {
			t.Fatalf("bad timestamps: %+v", first)
		}

		second, err = repo.Create(ctx, NewTask{Title: "second", Status: StatusInProgress, DueDateTime: due})
		if err != nil {
			t.Fatalf("create second: %v", err)
		}
		if second.ID <= first.ID {
			t.Fatalf("expected monotonic IDs: a=%d b=%d", first.ID, second.ID)
		}
		if second.Description != nil {
			t.Fatalf("expected null description, got %q", *second.Description)
		}

		list, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list error: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 tasks, got %d", len(list))
		}
		if list[0].Title != "first" || list[1].Title != "second" {
			t.Fatalf("unexpected order: %+v", list)
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, first.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != first.ID || got.Title != "first" {
			t.Fatalf("unexpected task: %+v", got)
		}
		if _, err := repo.Get(ctx, first.ID+1000); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update status", func(t *testing.T) {
		got, err := repo.UpdateStatus(ctx, first.ID, StatusCompleted)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Status != StatusCompleted || got.UpdatedAt == nil {
			t.Fatalf("status not updated: %+v", got)
		}
		if got.Title != first.Title || !got.CreatedAt.Equal(first.CreatedAt) {
			t.Fatalf("update must only touch status: %+v vs %+v", got, first)
		}
		if _, err := repo.UpdateStatus(ctx, first.ID, "archived"); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if _, err := repo.UpdateStatus(ctx, first.ID+1000, StatusPending); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		removed, err := repo.Delete(ctx, second.ID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if removed.ID != second.ID {
			t.Fatalf("expected removed row %d, got %d", second.ID, removed.ID)
		}
		if _, err := repo.Get(ctx, second.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if _, err := repo.Delete(ctx, second.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("ids beyond int32 are not found", func(t *testing.T) {
		const big = int64(math.MaxInt32) + 1
		if _, err := repo.Get(ctx, big); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.UpdateStatus(ctx, big, StatusPending); !errors.Is(err, ErrNotFound) {
			t.Fatalf("update: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.Delete(ctx, big); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent creates get distinct ids", func(t *testing.T) {
		const n = 32
		ids := make(chan int64, n)
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				task, err := repo.Create(ctx, NewTask{Title: uuid.NewString(), Status: StatusPending, DueDateTime: due})
				if err != nil {
					errs <- err
					return
				}
				ids <- task.ID
			}()
		}
		wg.Wait()
		close(ids)
		close(errs)

		for err := range errs {
			t.Fatalf("concurrent create: %v", err)
		}
		seen := make(map[int64]struct{}, n)
		for id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = struct{}{}
		}
		if len(seen) != n {
			t.Fatalf("expected %d ids, got %d", n, len(seen))
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

func TestInMemoryRepo(t *testing.T) {
	exerciseRepository(t, NewInMemoryRepo())
}

func TestInstrumentedRepo(t *testing.T) {
	exerciseRepository(t, Instrument(NewInMemoryRepo()))
}
