package tasks

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Repository is the data access boundary. Each method is one atomic store
// operation; absence is reported as ErrNotFound.
type Repository interface {
	Create(ctx context.Context, in NewTask) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	List(ctx context.Context) ([]Task, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (Task, error)
	Delete(ctx context.Context, id int64) (Task, error)
	Ping(ctx context.Context) error
}

type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	store map[int64]Task
	now   func() time.Time
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		store: make(map[int64]Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepo) Create(ctx context.Context, in NewTask) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Task{
		ID:          r.seq,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		DueDateTime: in.DueDateTime.UTC(),
		CreatedAt:   r.now(),
	}
	r.store[t.ID] = t
	return t, nil
}

func (r *InMemoryRepo) Get(ctx context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, notFoundError("get task")
	}
	return t, nil
}

func (r *InMemoryRepo) List(ctx context.Context) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.store))
	for _, t := range r.store {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Task) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *InMemoryRepo) UpdateStatus(ctx context.Context, id int64, status Status) (Task, error) {
	if err := validateStatus("update task status", status); err != nil {
		return Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, notFoundError("update task status")
	}
	now := r.now()
	t.Status = status
	t.UpdatedAt = &now
	r.store[id] = t
	return t, nil
}

func (r *InMemoryRepo) Delete(ctx context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, notFoundError("delete task")
	}
	delete(r.store, id)
	return t, nil
}

func (r *InMemoryRepo) Ping(ctx context.Context) error { return ctx.Err() }
