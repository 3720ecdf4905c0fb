package session

import (
	"errors"
	"time"

	"github.com/praxis-dev/praxis/internal/state"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session not found")

// Record is the durable archive of one finished executor session. Records are
// written once when a session reaches a terminal state and never mutated.
type Record struct {
	ID            string               `json:"id"`
	Query         string               `json:"query"`
	Pattern       string               `json:"pattern"`
	Status        string               `json:"status"`
	Output        string               `json:"output,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	Iterations    int                  `json:"iterations"`
	TokensUsed    int                  `json:"tokens_used"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	History       []state.HistoryEntry `json:"history,omitempty"`
}

// Duration returns the wall-clock duration of the session.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
