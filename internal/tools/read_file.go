package tools

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/sandbox"
)

// maxReadBytes bounds read_file output so a single observation cannot blow up
// the execution history.
const maxReadBytes = 256 * 1024

// ReadFileTool reads a file from inside the sandbox.
type ReadFileTool struct {
	sandbox *sandbox.Sandbox
	logger  *zap.Logger
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(sb *sandbox.Sandbox, logger *zap.Logger) *ReadFileTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadFileTool{sandbox: sb, logger: logger}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file inside the workspace"
}

func (t *ReadFileTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "path", Type: "string", Description: "File path, absolute or workspace-relative", Required: true},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}

	resolved, err := t.sandbox.Resolve(path)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read %s: is a directory", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}

	t.logger.Debug("Read file",
		zap.String("path", resolved),
		zap.Int("bytes", len(data)),
		zap.Bool("truncated", truncated),
	)

	out := string(data)
	if truncated {
		out += fmt.Sprintf("\n[truncated at %d bytes]", maxReadBytes)
	}
	return out, nil
}
