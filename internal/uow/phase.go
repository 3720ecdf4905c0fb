// Package uow models the unit-of-work lifecycle: an ordered phase state
// machine guarded by a compliance gate. A unit of work only advances to its
// immediate successor phase, and only when the artifacts required to leave
// the current phase exist and are approved.
package uow

import (
	"time"

	"github.com/google/uuid"
)

// Phase is one stage of the unit-of-work lifecycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseResearch     Phase = "research"
	PhaseInception    Phase = "inception"
	PhaseDesign       Phase = "design"
	PhasePlanning     Phase = "planning"
	PhaseConstruction Phase = "construction"
)

// phaseOrder fixes the lifecycle sequence. Construction is terminal.
var phaseOrder = []Phase{
	PhaseIdle,
	PhaseResearch,
	PhaseInception,
	PhaseDesign,
	PhasePlanning,
	PhaseConstruction,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, ph := range phaseOrder {
		if ph == p {
			return true
		}
	}
	return false
}

// Next returns the unique immediate successor of p, or false when p is
// terminal or unknown.
func (p Phase) Next() (Phase, bool) {
	for i, ph := range phaseOrder {
		if ph == p {
			if i+1 < len(phaseOrder) {
				return phaseOrder[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// State is the current lifecycle position of one unit of work.
type State struct {
	ID        string    `db:"id" json:"id"`
	Phase     Phase     `db:"phase" json:"phase"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewState creates a unit of work in the Idle phase.
func NewState() *State {
	now := time.Now()
	return &State{
		ID:        uuid.New().String(),
		Phase:     PhaseIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition is one append-only record of a phase change.
type Transition struct {
	From   Phase     `db:"from_phase" json:"from"`
	To     Phase     `db:"to_phase" json:"to"`
	At     time.Time `db:"at" json:"at"`
	Reason string    `db:"reason" json:"reason,omitempty"`
}
