package uow

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/metrics"
)

// ErrInvalidTransition is returned when the target phase is not the unique
// immediate successor of the current phase.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ErrGateNotMet is returned when a valid transition is blocked because
// required artifacts are missing or unapproved.
var ErrGateNotMet = errors.New("compliance gate not met")

// GateError carries the detail behind a blocked gate check.
type GateError struct {
	From    Phase
	To      Phase
	Missing []ArtifactType
}

func (e *GateError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return fmt.Sprintf("gate %s -> %s: missing approved artifacts: %s",
		e.From, e.To, strings.Join(names, ", "))
}

func (e *GateError) Unwrap() error { return ErrGateNotMet }

// Gate is the compliance gate: it decides which phase transitions are
// allowed given the approved artifacts on hand.
type Gate struct {
	logger *zap.Logger
}

// NewGate creates a compliance gate.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{logger: logger}
}

// RequiredArtifacts lists the artifact types that must be approved to leave
// the given phase. Idle requires nothing; a Design exit requires at least one
// approved ADR.
func (g *Gate) RequiredArtifacts(phase Phase) []ArtifactType {
	switch phase {
	case PhaseResearch:
		return []ArtifactType{ArtifactRequirements}
	case PhaseInception:
		return []ArtifactType{ArtifactProjectBrief}
	case PhaseDesign:
		return []ArtifactType{ArtifactADR}
	case PhasePlanning:
		return []ArtifactType{ArtifactWorkPlan}
	default:
		return nil
	}
}

// CanTransition reports whether moving from -> to is allowed: to must be the
// unique immediate successor of from, and every required artifact type must
// have at least one approved instance.
func (g *Gate) CanTransition(from, to Phase, artifacts []ArtifactRef) bool {
	next, ok := from.Next()
	if !ok || next != to {
		return false
	}
	return len(g.missing(from, artifacts)) == 0
}

// ValidateGate checks a proposed transition for the given state. It returns
// ErrInvalidTransition for a non-successor target and a GateError wrapping
// ErrGateNotMet for missing artifacts. The state is never mutated.
func (g *Gate) ValidateGate(st *State, to Phase, artifacts []ArtifactRef) error {
	next, ok := st.Phase.Next()
	if !ok || next != to {
		metrics.GateChecks.WithLabelValues(string(st.Phase), string(to), "invalid").Inc()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.Phase, to)
	}

	if missing := g.missing(st.Phase, artifacts); len(missing) > 0 {
		metrics.GateChecks.WithLabelValues(string(st.Phase), string(to), "denied").Inc()
		g.logger.Warn("Gate denied transition",
			zap.String("uow_id", st.ID),
			zap.String("from", string(st.Phase)),
			zap.String("to", string(to)),
			zap.Int("missing_artifacts", len(missing)),
		)
		return &GateError{From: st.Phase, To: to, Missing: missing}
	}

	metrics.GateChecks.WithLabelValues(string(st.Phase), string(to), "allowed").Inc()
	return nil
}

// missing returns the required artifact types for leaving phase that have no
// approved instance among artifacts.
func (g *Gate) missing(phase Phase, artifacts []ArtifactRef) []ArtifactType {
	var missing []ArtifactType
	for _, required := range g.RequiredArtifacts(phase) {
		approved := false
		for _, ref := range artifacts {
			if ref.Type == required && ref.Approved {
				approved = true
				break
			}
		}
		if !approved {
			missing = append(missing, required)
		}
	}
	return missing
}
