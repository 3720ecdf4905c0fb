package uow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/sandbox"
)

// FSStore is a filesystem-backed ArtifactStore. Every path goes through the
// sandbox before any I/O, the same policy the filesystem tools enforce.
type FSStore struct {
	sb     *sandbox.Sandbox
	logger *zap.Logger
}

// NewFSStore creates an artifact store rooted in the sandbox's allowed roots.
func NewFSStore(sb *sandbox.Sandbox, logger *zap.Logger) *FSStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSStore{sb: sb, logger: logger}
}

// Read returns the content of the artifact at path.
func (s *FSStore) Read(ctx context.Context, path string) ([]byte, error) {
	resolved, err := s.sb.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}

// Write stores content at path, creating parent directories as needed.
func (s *FSStore) Write(ctx context.Context, path string, content []byte) error {
	resolved, err := s.sb.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create artifact directory for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, content, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	s.logger.Debug("Artifact written",
		zap.String("path", path),
		zap.Int("bytes", len(content)),
	)
	return nil
}

// Exists reports whether an artifact exists at path.
func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	resolved, err := s.sb.Resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat artifact %s: %w", path, err)
	}
	return true, nil
}

// LoadRef reads the artifact at path and parses its front matter into an
// ArtifactRef.
func (s *FSStore) LoadRef(ctx context.Context, path string) (ArtifactRef, error) {
	data, err := s.Read(ctx, path)
	if err != nil {
		return ArtifactRef{}, err
	}
	return ParseRef(path, data)
}
