package uow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/metrics"
)

// Manager ties the compliance gate to the persistence layer: it is the only
// component that mutates a unit-of-work phase.
type Manager struct {
	gate   *Gate
	store  StatePersistence
	logger *zap.Logger
}

// NewManager creates a unit-of-work manager.
func NewManager(gate *Gate, store StatePersistence, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gate: gate, store: store, logger: logger}
}

// Create persists a fresh unit of work in the Idle phase.
func (m *Manager) Create(ctx context.Context) (*State, error) {
	st := NewState()
	if err := m.store.Save(ctx, st); err != nil {
		return nil, err
	}
	m.logger.Info("Unit of work created", zap.String("uow_id", st.ID))
	return st, nil
}

// Advance moves the unit of work to the next phase after the gate approves.
// On gate failure the state is untouched, in memory and in the store.
func (m *Manager) Advance(ctx context.Context, st *State, to Phase, artifacts []ArtifactRef, reason string) error {
	if err := m.gate.ValidateGate(st, to, artifacts); err != nil {
		return err
	}

	from := st.Phase
	st.Phase = to
	st.UpdatedAt = time.Now()

	if err := m.store.Save(ctx, st); err != nil {
		st.Phase = from
		return fmt.Errorf("persist phase change: %w", err)
	}
	tr := Transition{From: from, To: to, At: st.UpdatedAt, Reason: reason}
	if err := m.store.RecordTransition(ctx, st.ID, tr); err != nil {
		return fmt.Errorf("record phase transition: %w", err)
	}

	metrics.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
	m.logger.Info("Unit of work advanced",
		zap.String("uow_id", st.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return nil
}
