package job

import (
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
)

type Status string

// A partial job fetched some chunks; FailedChunks lists the others.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Retryable reports whether the job can be re-issued.
func (s Status) Retryable() bool {
	return s == StatusPartial || s == StatusFailed
}

type Job struct {
	ID           int64               `json:"id"`
	Dataset      string              `json:"dataset"`
	Key          string              `json:"key,omitempty"`
	StartDate    time.Time           `json:"startDate"`
	EndDate      time.Time           `json:"endDate"`
	Status       Status              `json:"status"`
	Error        string              `json:"error,omitempty"`
	RecordsCount int64               `json:"recordsCount"`
	FailedChunks []fetcher.DateRange `json:"failedChunks,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}
