package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var storeOpDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tasks_store_operation_duration_seconds",
		Help:    "Duration of task store operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(storeOpDuration)
}

type instrumentedRepo struct {
	next   Repository
	tracer trace.Tracer
}

// Instrument wraps repo so every operation gets a span and a duration
// observation labelled with its outcome kind.
func Instrument(repo Repository) Repository {
	return &instrumentedRepo{next: repo, tracer: otel.Tracer("tasks/store")}
}

func (r *instrumentedRepo) observe(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) {
	ctx, span := r.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := outcomeOf(err)
	storeOpDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.String("store.outcome", outcome))
	if err != nil && outcome != "not_found" && outcome != "validation" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (r *instrumentedRepo) Create(ctx context.Context, in NewTask) (t Task, err error) {
	r.observe(ctx, "create", func(ctx context.Context) error {
		t, err = r.next.Create(ctx, in)
		return err
	})
	return t, err
}

func (r *instrumentedRepo) Get(ctx context.Context, id int64) (t Task, err error) {
	r.observe(ctx, "get", func(ctx context.Context) error {
		t, err = r.next.Get(ctx, id)
		return err
	}, attribute.Int64("task.id", id))
	return t, err
}

func (r *instrumentedRepo) List(ctx context.Context) (ts []Task, err error) {
	r.observe(ctx, "list", func(ctx context.Context) error {
		ts, err = r.next.List(ctx)
		return err
	})
	return ts, err
}

func (r *instrumentedRepo) UpdateStatus(ctx context.Context, id int64, status Status) (t Task, err error) {
	r.observe(ctx, "update_status", func(ctx context.Context) error {
		t, err = r.next.UpdateStatus(ctx, id, status)
		return err
	}, attribute.Int64("task.id", id), attribute.String("task.status", string(status)))
	return t, err
}

func (r *instrumentedRepo) Delete(ctx context.Context, id int64) (t Task, err error) {
	r.observe(ctx, "delete", func(ctx context.Context) error {
		t, err = r.next.Delete(ctx, id)
		return err
	}, attribute.Int64("task.id", id))
	return t, err
}

func (r *instrumentedRepo) Ping(ctx context.Context) (err error) {
	r.observe(ctx, "ping", func(ctx context.Context) error {
		err = r.next.Ping(ctx)
		return err
	})
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
