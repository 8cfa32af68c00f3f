package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

type PostgresOptions struct {
	MaxConns int32
	// ConnectTimeout bounds the whole startup retry loop, not one dial.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// NewPostgresRepo opens a pool and pings it, retrying with exponential
// backoff until opts.ConnectTimeout elapses.
func NewPostgresRepo(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresRepo, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg.Copy())
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("postgres_connect_retry",
				slog.String("error", err.Error()),
				slog.Duration("next", next),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	logger.Info("postgres_connected",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.Int("port", int(poolCfg.ConnConfig.Port)),
		slog.String("database", poolCfg.ConnConfig.Database),
	)
	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

const pgColumns = `id, title, description, status::text, due_date_time, created_at, updated_at`

// Ids are bound as bigint so values past the SERIAL range miss instead of
// failing to encode as int4.
const (
	selectTaskQuery = `SELECT ` + pgColumns + ` FROM tasks WHERE id = $1::bigint`

	updateTaskStatusQuery = `
UPDATE tasks
SET status = $1,
    updated_at = NOW()
WHERE id = $2::bigint
RETURNING ` + pgColumns

	deleteTaskQuery = `DELETE FROM tasks WHERE id = $1::bigint RETURNING ` + pgColumns
)

func (r *PostgresRepo) Create(ctx context.Context, in NewTask) (Task, error) {
	const op = "create task"
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	const insertTaskQuery = `
INSERT INTO tasks (title, description, status, due_date_time)
VALUES ($1, $2, $3, $4)
RETURNING ` + pgColumns
	t, err := scanPgTask(r.pool.QueryRow(ctx, insertTaskQuery,
		in.Title,
		in.Description,
		string(in.Status),
		in.DueDateTime,
	))
	if err != nil {
		return Task{}, classifyPgError(op, err)
	}
	return t, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Task, error) {
	const op = "get task"
	t, err := scanPgTask(r.pool.QueryRow(ctx, selectTaskQuery, id))
	if err != nil {
		return Task{}, classifyPgError(op, err)
	}
	return t, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Task, error) {
	const op = "list tasks"
	const selectTasksQuery = `SELECT ` + pgColumns + ` FROM tasks ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, selectTasksQuery)
	if err != nil {
		return nil, classifyPgError(op, err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, classifyPgError(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(op, err)
	}
	return out, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id int64, status Status) (Task, error) {
	const op = "update task status"
	if err := validateStatus(op, status); err != nil {
		return Task{}, err
	}
	t, err := scanPgTask(r.pool.QueryRow(ctx, updateTaskStatusQuery, string(status), id))
	if err != nil {
		return Task{}, classifyPgError(op, err)
	}
	return t, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) (Task, error) {
	const op = "delete task"
	t, err := scanPgTask(r.pool.QueryRow(ctx, deleteTaskQuery, id))
	if err != nil {
		return Task{}, classifyPgError(op, err)
	}
	return t, nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return classifyPgError("ping", err)
	}
	return nil
}

// ApplyMigrations creates the status enum and the tasks table if missing.
func (r *PostgresRepo) ApplyMigrations(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `
DO $$ BEGIN
	CREATE TYPE task_status AS ENUM ('pending', 'in-progress', 'completed');
EXCEPTION
	WHEN duplicate_object THEN null;
END $$;
`); err != nil {
		return fmt.Errorf("create task_status enum: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
	id SERIAL PRIMARY KEY,
	title VARCHAR(100) NOT NULL,
	description TEXT,
	status task_status NOT NULL DEFAULT 'pending',
	due_date_time TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NULL
);
`); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func scanPgTask(row pgx.Row) (Task, error) {
	var (
		t      Task
		status string
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&status,
		&t.DueDateTime,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	return t, nil
}

func classifyPgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundError(op)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return unavailableError(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return unavailableError(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return &Error{Kind: ErrValidation, Op: op, Message: pgErr.Message, Err: err}
		case "08", "53", "57":
			return unavailableError(op, err)
		}
	}
	return unknownError(op, err)
}
