// # internal/scanner/scanner.go
package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Strategy names how literals are located in a file. The structural strategy
// is required whenever results must be written back to source; hybrid runs
// structural first and falls back to pattern per file on parse failure.
type Strategy string

const (
	StrategyPattern    Strategy = "pattern"
	StrategyStructural Strategy = "structural"
	StrategyHybrid     Strategy = "hybrid"
)

type Scanner struct {
	matcher *Matcher
}

func New(include, excludeDirs, excludeFiles []string) (*Scanner, error) {
	m, err := NewMatcher(include, excludeDirs, excludeFiles)
	if err != nil {
		return nil, err
	}
	return &Scanner{matcher: m}, nil
}

// Matcher exposes the compiled filter so other components can apply the
// same rules without recompiling the globs.
func (s *Scanner) Matcher() *Matcher {
	return s.matcher
}

// ScanResult lists candidate files; unreadable subtrees are recorded as
// warnings, never aborting the scan.
type ScanResult struct {
	Files    []string
	Warnings []string
}

func (s *Scanner) Scan(roots []string) (ScanResult, error) {
	var res ScanResult
	seen := make(map[string]bool)

	for _, root := range uniqueRoots(roots) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("skipping %s: %v", path, err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if s.matcher.ExcludesDir(path) {
					return filepath.SkipDir
				}
				return nil
			}

			if !s.matcher.IncludesFile(path) {
				return nil
			}

			if !seen[path] {
				seen[path] = true
				res.Files = append(res.Files, path)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}

	sort.Strings(res.Files)
	return res, nil
}

func uniqueRoots(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		normalized := filepath.Clean(p)
		if abs, err := filepath.Abs(normalized); err == nil {
			normalized = filepath.Clean(abs)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		roots = append(roots, normalized)
	}
	sort.Strings(roots)
	return roots
}
