package uow

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore("sqlite3", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_SaveLoadRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	st := NewState()
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, PhaseIdle, got.Phase)
	assert.WithinDuration(t, st.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLStore_SaveUpserts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	st := NewState()
	require.NoError(t, store.Save(ctx, st))

	st.Phase = PhaseResearch
	st.UpdatedAt = time.Now()
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseResearch, got.Phase)
}

func TestSQLStore_LoadMissing(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestSQLStore_TransitionHistoryOrdered(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	st := NewState()
	require.NoError(t, store.Save(ctx, st))

	base := time.Now().Truncate(time.Second)
	steps := []Transition{
		{From: PhaseIdle, To: PhaseResearch, At: base, Reason: "kickoff"},
		{From: PhaseResearch, To: PhaseInception, At: base.Add(time.Minute), Reason: "requirements approved"},
		{From: PhaseInception, To: PhaseDesign, At: base.Add(2 * time.Minute)},
	}
	for _, tr := range steps {
		require.NoError(t, store.RecordTransition(ctx, st.ID, tr))
	}

	got, err := store.Transitions(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, PhaseResearch, got[0].To)
	assert.Equal(t, "requirements approved", got[1].Reason)
	assert.Equal(t, PhaseDesign, got[2].To)
}

func TestSQLStore_SaveRequiresID(t *testing.T) {
	store := newSQLiteStore(t)
	assert.Error(t, store.Save(context.Background(), &State{}))
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestSQLStore_SaveQueryShape(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewSQLStoreFromDB(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())

	st := NewState()
	mock.ExpectExec("INSERT INTO uow_states").
		WithArgs(st.ID, st.Phase, st.CreatedAt, st.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), st))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_AdvanceHappyPath(t *testing.T) {
	store := newSQLiteStore(t)
	m := NewManager(NewGate(zap.NewNop()), store, zap.NewNop())
	ctx := context.Background()

	st, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)

	require.NoError(t, m.Advance(ctx, st, PhaseResearch, nil, "kickoff"))
	assert.Equal(t, PhaseResearch, st.Phase)

	require.NoError(t, m.Advance(ctx, st, PhaseInception,
		[]ArtifactRef{approved(ArtifactRequirements)}, "requirements signed off"))

	// Persisted state and history agree with the in-memory state.
	got, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseInception, got.Phase)

	history, err := store.Transitions(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, PhaseIdle, history[0].From)
	assert.Equal(t, "requirements signed off", history[1].Reason)
}

func TestManager_AdvanceDeniedLeavesStateUntouched(t *testing.T) {
	store := newSQLiteStore(t)
	m := NewManager(NewGate(zap.NewNop()), store, zap.NewNop())
	ctx := context.Background()

	st, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Advance(ctx, st, PhaseResearch, nil, ""))

	err = m.Advance(ctx, st, PhaseInception, nil, "")
	assert.ErrorIs(t, err, ErrGateNotMet)
	assert.Equal(t, PhaseResearch, st.Phase)

	got, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseResearch, got.Phase)
	history, err := store.Transitions(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
