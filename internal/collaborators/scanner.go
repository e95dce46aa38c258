// Package collaborators provides default, concrete implementations of the
// three collaborators spec §6 specifies only at their interface: the
// project scanner, the diff/merge skill, and the asset writer. The spec
// treats these as black boxes outside the core's scope; these
// implementations exist so the module is runnable end to end, grounded
// on the teacher's internal/actions/fs.go filesystem action patterns.
package collaborators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Scanner reads project files matching input_paths (glob patterns),
// excluding exclusions, and returns newline-delimited text with
// `=== <path> ===` section markers, per spec §6.
type Scanner interface {
	Scan(ctx context.Context, projectPath string, inputPaths, exclusions []string) (string, map[string]string, error)
}

// FileScanner is the default local-filesystem Scanner.
type FileScanner struct{}

// NewFileScanner constructs a FileScanner.
func NewFileScanner() *FileScanner { return &FileScanner{} }

func (s *FileScanner) Scan(ctx context.Context, projectPath string, inputPaths, exclusions []string) (string, map[string]string, error) {
	if len(inputPaths) == 0 {
		inputPaths = []string{"**/*"}
	}

	matches := map[string]struct{}{}
	for _, pattern := range inputPaths {
		found, err := globRelative(projectPath, pattern)
		if err != nil {
			return "", nil, schema.NewErrorf(schema.ErrCodeIO, "scanner: bad glob %q: %s", pattern, err.Error()).WithCause(err)
		}
		for _, m := range found {
			matches[m] = struct{}{}
		}
	}
	for _, pattern := range exclusions {
		excluded, err := globRelative(projectPath, pattern)
		if err != nil {
			return "", nil, schema.NewErrorf(schema.ErrCodeIO, "scanner: bad exclusion glob %q: %s", pattern, err.Error()).WithCause(err)
		}
		for _, e := range excluded {
			delete(matches, e)
		}
	}

	var relPaths []string
	for p := range matches {
		relPaths = append(relPaths, p)
	}
	sort.Strings(relPaths)

	files := map[string]string{}
	var b strings.Builder
	for _, rel := range relPaths {
		full := filepath.Join(projectPath, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			return "", nil, schema.NewErrorf(schema.ErrCodeIO, "scanner: reading %s: %s", rel, err.Error()).WithCause(err)
		}
		files[rel] = string(content)
		fmt.Fprintf(&b, "=== %s ===\n%s\n", rel, string(content))
	}

	return b.String(), files, nil
}

func globRelative(root, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}
