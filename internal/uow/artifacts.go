package uow

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ArtifactType classifies a gate artifact.
type ArtifactType string

const (
	ArtifactRequirements ArtifactType = "requirements"
	ArtifactProjectBrief ArtifactType = "project_brief"
	ArtifactADR          ArtifactType = "adr"
	ArtifactBlueprint    ArtifactType = "blueprint"
	ArtifactWorkPlan     ArtifactType = "work_plan"
)

// ArtifactRef points at one artifact and its approval status. Approval is
// decided outside this package, either by a human or through a Validator.
type ArtifactRef struct {
	Path     string       `json:"path"`
	Type     ArtifactType `json:"type"`
	Approved bool         `json:"approved"`
}

// ArtifactStore reads and writes artifact content by path.
type ArtifactStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte) error
	Exists(ctx context.Context, path string) (bool, error)
}

// ValidationResult is the outcome of validating one artifact's content.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator checks artifact content against the expectations for its type.
type Validator interface {
	Validate(artifactType ArtifactType, content []byte) ValidationResult
}

var frontMatterDelim = []byte("---")

// artifactFrontMatter is the YAML header carried at the top of artifact
// markdown files.
type artifactFrontMatter struct {
	Type     ArtifactType `yaml:"type"`
	Approved bool         `yaml:"approved"`
}

// ParseRef extracts an ArtifactRef from markdown content with a YAML front
// matter block delimited by "---" lines.
func ParseRef(path string, content []byte) (ArtifactRef, error) {
	trimmed := bytes.TrimLeft(content, "\r\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return ArtifactRef{}, fmt.Errorf("artifact %s: missing front matter", path)
	}
	rest := bytes.TrimPrefix(trimmed, frontMatterDelim)
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return ArtifactRef{}, fmt.Errorf("artifact %s: unterminated front matter", path)
	}

	var fm artifactFrontMatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return ArtifactRef{}, fmt.Errorf("artifact %s: parse front matter: %w", path, err)
	}
	if fm.Type == "" {
		return ArtifactRef{}, fmt.Errorf("artifact %s: front matter missing type", path)
	}

	return ArtifactRef{Path: path, Type: fm.Type, Approved: fm.Approved}, nil
}
