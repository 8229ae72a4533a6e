// # internal/scanner/matcher.go
package scanner

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"

	"gqlshift/internal/shared/util"
)

// Matcher applies the configured include and exclude globs to path bases.
// The scanner and the watcher share one matcher so a watch-triggered
// re-extraction sees the same file set a full scan would.
type Matcher struct {
	includes     []glob.Glob
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

func NewMatcher(include, excludeDirs, excludeFiles []string) (*Matcher, error) {
	m := &Matcher{}

	var err error
	if m.includes, err = compileAll(include); err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	if m.excludeDirs, err = compileAll(excludeDirs); err != nil {
		return nil, fmt.Errorf("invalid exclude dir pattern: %w", err)
	}
	if m.excludeFiles, err = compileAll(excludeFiles); err != nil {
		return nil, fmt.Errorf("invalid exclude file pattern: %w", err)
	}
	return m, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		normalized := util.NormalizePatternPath(p)
		if normalized == "" {
			continue
		}
		g, err := glob.Compile(normalized)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// IncludesFile reports whether a file should be considered a source file.
// An empty include list admits everything not explicitly excluded.
func (m *Matcher) IncludesFile(path string) bool {
	base := filepath.Base(path)

	if len(m.includes) > 0 {
		matched := false
		for _, g := range m.includes {
			if g.Match(base) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, g := range m.excludeFiles {
		if g.Match(base) {
			return false
		}
	}
	return true
}

// ExcludesDir reports whether a directory subtree should be skipped.
func (m *Matcher) ExcludesDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range m.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}
