package models

import (
	"time"
)

// TaskStatus is the lifecycle state of an asynchronous extraction.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Final reports whether no further transition is expected.
func (s TaskStatus) Final() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ExtractionTask is the client-facing view of a submitted extraction.
type ExtractionTask struct {
	ID        string     `json:"taskId"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Filename  string     `json:"filename"`
	MimeType  string     `json:"mimeType"`
	Size      int64      `json:"size"`
	Hash      string     `json:"hash,omitempty"`
	Error     string     `json:"error,omitempty"`
	ResultKey string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}
