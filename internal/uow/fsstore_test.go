package uow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/sandbox"
)

const adrContent = `---
type: adr
approved: true
---
# ADR-001: use a phase gate

Accepted.
`

func newTestFSStore(t *testing.T) (*FSStore, string) {
	t.Helper()
	root := t.TempDir()
	sb, err := sandbox.New([]string{root}, sandbox.DefaultDenyPatterns, zap.NewNop())
	require.NoError(t, err)
	return NewFSStore(sb, zap.NewNop()), root
}

func TestFSStore_WriteReadExists(t *testing.T) {
	store, root := newTestFSStore(t)
	ctx := context.Background()
	path := filepath.Join(root, "docs", "adr", "001.md")

	ok, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, path, []byte(adrContent)))

	ok, err = store.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, adrContent, string(data))
}

func TestFSStore_OutsideRootRejected(t *testing.T) {
	store, root := newTestFSStore(t)
	ctx := context.Background()

	outside := filepath.Join(root, "..", "escape.md")
	err := store.Write(ctx, outside, []byte("x"))
	assert.ErrorIs(t, err, sandbox.ErrSecurityViolation)

	_, err = store.Read(ctx, outside)
	assert.ErrorIs(t, err, sandbox.ErrSecurityViolation)
}

func TestFSStore_DenyPatternRejected(t *testing.T) {
	store, root := newTestFSStore(t)
	err := store.Write(context.Background(), filepath.Join(root, ".env"), []byte("SECRET=x"))
	assert.ErrorIs(t, err, sandbox.ErrSecurityViolation)
}

func TestFSStore_LoadRef(t *testing.T) {
	store, root := newTestFSStore(t)
	ctx := context.Background()
	path := filepath.Join(root, "docs", "adr", "001.md")
	require.NoError(t, store.Write(ctx, path, []byte(adrContent)))

	ref, err := store.LoadRef(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ArtifactADR, ref.Type)
	assert.True(t, ref.Approved)
	assert.Equal(t, path, ref.Path)
}

func TestParseRef(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		ref, err := ParseRef("a.md", []byte("---\ntype: requirements\napproved: true\n---\nbody"))
		require.NoError(t, err)
		assert.Equal(t, ArtifactRequirements, ref.Type)
		assert.True(t, ref.Approved)
	})

	t.Run("approval defaults to false", func(t *testing.T) {
		ref, err := ParseRef("a.md", []byte("---\ntype: work_plan\n---\nbody"))
		require.NoError(t, err)
		assert.Equal(t, ArtifactWorkPlan, ref.Type)
		assert.False(t, ref.Approved)
	})

	t.Run("missing front matter", func(t *testing.T) {
		_, err := ParseRef("a.md", []byte("# just markdown"))
		assert.Error(t, err)
	})

	t.Run("unterminated front matter", func(t *testing.T) {
		_, err := ParseRef("a.md", []byte("---\ntype: adr\n"))
		assert.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseRef("a.md", []byte("---\napproved: true\n---\n"))
		assert.Error(t, err)
	})
}
