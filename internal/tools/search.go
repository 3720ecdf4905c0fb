package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/sandbox"
)

const (
	// maxSearchResults caps match output to bound observation size.
	maxSearchResults = 100
	// searchContextLines is the number of lines shown around each match.
	searchContextLines = 2
	// maxSearchFileBytes skips files too large to scan line by line.
	maxSearchFileBytes = 4 * 1024 * 1024
)

// SearchTool runs a regex across files under an allowed root.
type SearchTool struct {
	sandbox *sandbox.Sandbox
	logger  *zap.Logger
}

// NewSearchTool creates the search tool.
func NewSearchTool(sb *sandbox.Sandbox, logger *zap.Logger) *SearchTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchTool{sandbox: sb, logger: logger}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Search file contents under the workspace with a regular expression"
}

func (t *SearchTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "pattern", Type: "string", Description: "Go regular expression", Required: true},
		{Name: "path", Type: "string", Description: "Directory to search, defaults to the workspace root", Required: false},
	}
}

// Match is one search hit with surrounding context.
type Match struct {
	File    string
	Line    int
	Text    string
	Context []string
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	patternStr, err := stringArg(args, "pattern")
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(patternStr)
	if err != nil {
		return "", fmt.Errorf("invalid search pattern: %w", err)
	}

	root := t.sandbox.Roots()[0]
	if p, ok := args["path"].(string); ok && p != "" {
		resolved, err := t.sandbox.Resolve(p)
		if err != nil {
			return "", err
		}
		root = resolved
	}

	matches, truncated, err := t.scan(ctx, root, re)
	if err != nil {
		return "", err
	}

	t.logger.Debug("Search completed",
		zap.String("pattern", patternStr),
		zap.String("root", root),
		zap.Int("matches", len(matches)),
		zap.Bool("truncated", truncated),
	)

	return formatMatches(matches, truncated), nil
}

func (t *SearchTool) scan(ctx context.Context, root string, re *regexp.Regexp) ([]Match, bool, error) {
	var matches []Match
	truncated := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// The sandbox deny list covers directories like .git.
			if t.sandbox.Check(path) != nil && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if t.sandbox.Check(path) != nil {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxSearchFileBytes {
			return nil
		}

		fileMatches, err := scanFile(path, re, maxSearchResults-len(matches))
		if err != nil {
			return nil
		}
		for i := range fileMatches {
			if rel, err := filepath.Rel(root, fileMatches[i].File); err == nil {
				fileMatches[i].File = rel
			}
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= maxSearchResults {
			truncated = true
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, false, fmt.Errorf("search %s: %w", root, err)
	}

	return matches, truncated, nil
}

var errStopWalk = errors.New("stop walk")

func scanFile(path string, re *regexp.Regexp, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var matches []Match
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, Match{
			File:    path,
			Line:    i + 1,
			Text:    line,
			Context: contextLines(lines, i),
		})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func contextLines(lines []string, idx int) []string {
	start := idx - searchContextLines
	if start < 0 {
		start = 0
	}
	end := idx + searchContextLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	out := make([]string, end-start)
	copy(out, lines[start:end])
	return out
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.ContainsRune(probe, 0)
}

func formatMatches(matches []Match, truncated bool) string {
	if len(matches) == 0 {
		return "no matches"
	}

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.File, m.Line, m.Text)
		for _, c := range m.Context {
			fmt.Fprintf(&b, "    %s\n", c)
		}
	}
	if truncated {
		fmt.Fprintf(&b, "[results capped at %d matches]\n", maxSearchResults)
	}
	return b.String()
}
