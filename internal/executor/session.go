package executor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session. Pending -> Running ->
// {Completed, Failed}; terminal states are absorbing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status absorbs further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Budget is the resource ceiling for one session. It is set at session
// creation and never mutated; running counters are compared against it.
type Budget struct {
	MaxTokens     int           `json:"max_tokens"`
	MaxIterations int           `json:"max_iterations"`
	Timeout       time.Duration `json:"timeout"`
}

// Session is one bounded execution run of an agent against a query.
type Session struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	Budget        Budget    `json:"budget"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// NewSession creates a pending session with the given budget.
func NewSession(budget Budget) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Budget:    budget,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// transition moves the session to a new status. Terminal states are
// immutable; a transition out of one is a programming error surfaced loudly.
func (s *Session) transition(to Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("session %s is terminal (%s), cannot move to %s", s.ID, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// ExecutionResult is the successful outcome of a session.
type ExecutionResult struct {
	SessionID  string        `json:"session_id"`
	Output     string        `json:"output"`
	Iterations int           `json:"iterations"`
	TokensUsed int           `json:"tokens_used"`
	Duration   time.Duration `json:"duration"`
}

// FailureKind classifies fatal session failures.
type FailureKind string

const (
	FailureMaxIterations   FailureKind = "max_iterations"
	FailureBudgetExhausted FailureKind = "budget_exhausted"
	FailureParse           FailureKind = "parse_error"
	FailureInternal        FailureKind = "internal"
)

// ExecutionError is the structured terminal failure of a session. Reason is
// human-readable and retained on the session for audit.
type ExecutionError struct {
	SessionID string
	Kind      FailureKind
	Reason    string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("session %s failed (%s): %s", e.SessionID, e.Kind, e.Reason)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
