// Package sandbox enforces the path policy that tool executions must pass
// before touching the filesystem. A Sandbox holds a set of allowed roots and
// deny patterns; every candidate path is canonicalized and checked against
// both before any I/O happens.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/metrics"
)

// ErrSecurityViolation is the sentinel for any path rejected by the sandbox.
var ErrSecurityViolation = errors.New("security violation")

// ViolationError carries the rejected path and the reason for rejection.
type ViolationError struct {
	Path   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("security violation: %s: %s", e.Path, e.Reason)
}

func (e *ViolationError) Unwrap() error { return ErrSecurityViolation }

// DefaultDenyPatterns blocks secrets and VCS internals regardless of root.
var DefaultDenyPatterns = []string{
	".env*",
	"*.key",
	"*.pem",
	".git/**",
}

type denyPattern struct {
	raw      string
	compiled glob.Glob
	// patterns without a separator also apply to individual path segments
	segmental bool
}

// Sandbox validates filesystem paths against allowed roots and deny patterns.
// It is read-only after construction and safe for concurrent use.
type Sandbox struct {
	roots  []string
	deny   []denyPattern
	logger *zap.Logger
}

// New builds a sandbox from allowed root directories and deny glob patterns.
// Roots are canonicalized up front so symlinked roots behave consistently.
func New(roots []string, deny []string, logger *zap.Logger) (*Sandbox, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("sandbox requires at least one allowed root")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	canonical := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		canonical = append(canonical, abs)
	}

	patterns := make([]denyPattern, 0, len(deny))
	for _, p := range deny {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", p, err)
		}
		patterns = append(patterns, denyPattern{
			raw:       p,
			compiled:  g,
			segmental: !strings.Contains(p, "/"),
		})
	}

	return &Sandbox{roots: canonical, deny: patterns, logger: logger}, nil
}

// Roots returns the canonical allowed roots.
func (s *Sandbox) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Resolve canonicalizes path and returns the real path iff it is inside an
// allowed root and not denied. The target may not exist yet (writes create
// files), so symlinks are resolved through the nearest existing ancestor to
// block escapes via linked directories.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", s.violation(path, "empty path")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.roots[0], abs)
	}
	abs = filepath.Clean(abs)

	real, err := resolveThroughAncestors(abs)
	if err != nil {
		return "", s.violation(path, fmt.Sprintf("cannot canonicalize: %v", err))
	}

	root, ok := s.containingRoot(real)
	if !ok {
		return "", s.violation(path, "outside allowed roots")
	}

	rel, err := filepath.Rel(root, real)
	if err != nil {
		return "", s.violation(path, "outside allowed roots")
	}
	rel = filepath.ToSlash(rel)

	if pat, denied := s.matchDeny(rel); denied {
		return "", s.violation(path, fmt.Sprintf("matches deny pattern %q", pat))
	}

	return real, nil
}

// Check is Resolve without returning the canonical path.
func (s *Sandbox) Check(path string) error {
	_, err := s.Resolve(path)
	return err
}

func (s *Sandbox) containingRoot(real string) (string, bool) {
	for _, root := range s.roots {
		if real == root || strings.HasPrefix(real, root+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

func (s *Sandbox) matchDeny(rel string) (string, bool) {
	segments := strings.Split(rel, "/")
	for _, p := range s.deny {
		if p.compiled.Match(rel) {
			return p.raw, true
		}
		if p.segmental {
			for _, seg := range segments {
				if p.compiled.Match(seg) {
					return p.raw, true
				}
			}
		}
	}
	return "", false
}

func (s *Sandbox) violation(path, reason string) error {
	metrics.SandboxViolations.Inc()
	s.logger.Warn("Sandbox rejected path",
		zap.String("path", path),
		zap.String("reason", reason),
	)
	return &ViolationError{Path: path, Reason: reason}
}

// resolveThroughAncestors resolves symlinks for a path that may not exist by
// canonicalizing the deepest existing ancestor and re-joining the remainder.
func resolveThroughAncestors(abs string) (string, error) {
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	remainder := ""
	cur := abs
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no existing ancestor for %s", abs)
		}
		remainder = filepath.Join(filepath.Base(cur), remainder)
		cur = parent
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(real, remainder), nil
		}
	}
}
