package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/sandbox"
)

// WriteFileTool writes a file inside the sandbox, creating missing parent
// directories first.
type WriteFileTool struct {
	sandbox *sandbox.Sandbox
	logger  *zap.Logger
}

// NewWriteFileTool creates the write_file tool.
func NewWriteFileTool(sb *sandbox.Sandbox, logger *zap.Logger) *WriteFileTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteFileTool{sandbox: sb, logger: logger}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file inside the workspace, creating parent directories as needed"
}

func (t *WriteFileTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "path", Type: "string", Description: "File path, absolute or workspace-relative", Required: true},
		{Name: "content", Type: "string", Description: "Content to write", Required: true},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", "content")
	}

	resolved, err := t.sandbox.Resolve(path)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	t.logger.Debug("Wrote file",
		zap.String("path", resolved),
		zap.Int("bytes", len(content)),
	)

	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}
