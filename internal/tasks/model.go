package tasks

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists the closed set of task states in declaration order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	DueDateTime time.Time  `json:"dueDateTime"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// NewTask holds the client-supplied fields of a task about to be stored.
type NewTask struct {
	Title       string    `json:"title" validate:"required,max=100"`
	Description *string   `json:"description"`
	Status      Status    `json:"status" validate:"required,task_status"`
	DueDateTime time.Time `json:"dueDateTime" validate:"required"`
}

// Accepted dueDateTime layouts. Values without a zone are taken as UTC.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (n *NewTask) UnmarshalJSON(b []byte) error {
	var raw struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Status      Status  `json:"status"`
		DueDateTime *string `json:"dueDateTime"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = NewTask{Title: raw.Title, Description: raw.Description, Status: raw.Status}
	if raw.DueDateTime == nil || strings.TrimSpace(*raw.DueDateTime) == "" {
		return nil
	}
	due, err := parseDueDateTime(*raw.DueDateTime)
	if err != nil {
		return err
	}
	n.DueDateTime = due
	return nil
}

func parseDueDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationError("decode body", "invalid task", FieldError{
		Field:   "dueDateTime",
		Message: "dueDateTime must be an RFC 3339 date-time or a YYYY-MM-DD date",
	})
}
