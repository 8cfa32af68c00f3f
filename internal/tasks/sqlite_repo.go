package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepo(dsn string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

const sqliteColumns = `id, title, description, status, due_date_time, created_at, updated_at`

func (r *SQLiteRepo) Create(ctx context.Context, in NewTask) (Task, error) {
	const op = "create task"
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (title, description, status, due_date_time, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+sqliteColumns,
		in.Title, in.Description, string(in.Status),
		formatTime(in.DueDateTime), formatTime(r.now()),
	)
	t, err := scanSQLiteTask(row)
	if err != nil {
		return Task{}, classifySQLiteError(op, err)
	}
	return t, nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (Task, error) {
	const op = "get task"
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanSQLiteTask(row)
	if err != nil {
		return Task{}, classifySQLiteError(op, err)
	}
	return t, nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]Task, error) {
	const op = "list tasks"
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, classifySQLiteError(op, err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, classifySQLiteError(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(op, err)
	}
	return out, nil
}

func (r *SQLiteRepo) UpdateStatus(ctx context.Context, id int64, status Status) (Task, error) {
	const op = "update task status"
	if err := validateStatus(op, status); err != nil {
		return Task{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+sqliteColumns,
		string(status), formatTime(r.now()), id,
	)
	t, err := scanSQLiteTask(row)
	if err != nil {
		return Task{}, classifySQLiteError(op, err)
	}
	return t, nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) (Task, error) {
	const op = "delete task"
	row := r.db.QueryRowContext(ctx, `DELETE FROM tasks WHERE id = ? RETURNING `+sqliteColumns, id)
	t, err := scanSQLiteTask(row)
	if err != nil {
		return Task{}, classifySQLiteError(op, err)
	}
	return t, nil
}

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classifySQLiteError("ping", err)
	}
	return nil
}

// ApplyMigrations ensures schema exists
func (r *SQLiteRepo) ApplyMigrations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL CHECK (length(title) BETWEEN 1 AND 100),
	description TEXT,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'in-progress', 'completed')),
	due_date_time TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT
);
	`)
	return err
}

// Helper to build DSN like: file:/absolute/path?_pragma=busy_timeout(5000)
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(s rowScanner) (Task, error) {
	var (
		t                    Task
		status, due, created string
		description, updated sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Title, &description, &status, &due, &created, &updated); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	if description.Valid {
		t.Description = &description.String
	}
	var err error
	if t.DueDateTime, err = time.Parse(time.RFC3339Nano, due); err != nil {
		return Task{}, fmt.Errorf("parse due_date_time: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	if updated.Valid {
		ts, err := time.Parse(time.RFC3339Nano, updated.String)
		if err != nil {
			return Task{}, fmt.Errorf("parse updated_at: %w", err)
		}
		t.UpdatedAt = &ts
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func classifySQLiteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError(op)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return unavailableError(op, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return &Error{Kind: ErrValidation, Op: op, Message: "constraint violation", Err: err}
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
			return unavailableError(op, err)
		}
	}
	return unknownError(op, err)
}
