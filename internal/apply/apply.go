// # internal/apply/apply.go
package apply

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gqlshift/internal/core/errors"
	"gqlshift/internal/extract"
	"gqlshift/internal/shared/observability"
)

// Edit maps one transformed operation back onto its source file. Span and
// Original describe the literal content as it was at extraction time; the
// applicator re-verifies both against the file on disk before writing.
type Edit struct {
	OperationID string
	FilePath    string
	Span        extract.SourceSpan
	Original    string
	Transformed string
}

// FileResult reports the outcome for one file's change set. A failed file
// aborts only its own edits; other files proceed independently.
type FileResult struct {
	FilePath     string
	EditsApplied int
	Preview      string
	// Skipped holds per-mapping relocation failures; the file's remaining
	// edits still proceed.
	Skipped []error
	Err     error
}

// Applicator rewrites source files span-precisely. Writes to the same path
// are serialized by a per-file lock; different files may be written
// concurrently.
type Applicator struct {
	structural *extract.StructuralExtractor

	// Preview renders the rewritten content without touching disk.
	Preview bool
	// Backup writes a .bak copy of each file before the first edit.
	Backup bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(structural *extract.StructuralExtractor) *Applicator {
	return &Applicator{
		structural: structural,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (a *Applicator) fileLock(path string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := a.locks[path]
	if l == nil {
		l = &sync.Mutex{}
		a.locks[path] = l
	}
	return l
}

// Apply groups edits by file and rewrites each file once. Results come back
// in file path order.
func (a *Applicator) Apply(edits []Edit) []FileResult {
	byFile := make(map[string][]Edit)
	for _, e := range edits {
		byFile[e.FilePath] = append(byFile[e.FilePath], e)
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	results := make([]FileResult, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = a.applyFile(path, byFile[path])
		}(i, p)
	}
	wg.Wait()
	return results
}

func (a *Applicator) applyFile(path string, edits []Edit) FileResult {
	lock := a.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	res := FileResult{FilePath: path}

	content, err := os.ReadFile(path)
	if err != nil {
		res.Err = errors.AddContext(errors.Wrap(err, errors.CodeApplyError, "read target file"), errors.CtxPath, path)
		observability.ApplyFailuresTotal.Inc()
		return res
	}
	original := string(content)

	resolved := make([]Edit, 0, len(edits))
	for _, e := range edits {
		span, err := a.resolveSpan(path, original, e)
		if err != nil {
			// A mapping that cannot be pinned is skipped on its own; the
			// file's other edits still go through.
			slog.Warn("skipping unresolvable edit", "path", path, "operation", e.OperationID, "error", err)
			res.Skipped = append(res.Skipped, err)
			observability.ApplyFailuresTotal.Inc()
			continue
		}
		e.Span = span
		resolved = append(resolved, e)
	}
	if len(resolved) == 0 {
		return res
	}

	if err := checkOverlap(resolved); err != nil {
		res.Err = errors.AddContext(err, errors.CtxPath, path)
		observability.ApplyFailuresTotal.Inc()
		return res
	}

	// Highest offset first keeps the remaining spans valid as text shrinks
	// or grows.
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Span.Start > resolved[j].Span.Start })
	updated := original
	for _, e := range resolved {
		updated = updated[:e.Span.Start] + e.Transformed + updated[e.Span.End:]
	}

	ok, err := a.structural.ParseCheck(path, []byte(updated))
	if err == nil && !ok {
		err = errors.New(errors.CodeApplyError, "rewritten file no longer parses; no changes were written")
	}
	if err != nil {
		res.Err = errors.AddContext(errors.Wrap(err, errors.CodeApplyError, "post-edit validation"), errors.CtxPath, path)
		observability.ApplyFailuresTotal.Inc()
		return res
	}

	res.EditsApplied = len(resolved)
	if a.Preview {
		res.Preview = updated
		return res
	}

	if a.Backup {
		if err := os.WriteFile(path+".bak", content, 0o644); err != nil {
			res.Err = errors.AddContext(errors.Wrap(err, errors.CodeApplyError, "write backup"), errors.CtxPath, path)
			res.EditsApplied = 0
			observability.ApplyFailuresTotal.Inc()
			return res
		}
	}
	if err := os.WriteFile(path, []byte(updated), filePerm(path)); err != nil {
		res.Err = errors.AddContext(errors.Wrap(err, errors.CodeApplyError, "write target file"), errors.CtxPath, path)
		res.EditsApplied = 0
		observability.ApplyFailuresTotal.Inc()
		return res
	}

	slog.Info("applied edits", "path", path, "count", len(resolved))
	observability.ApplyEditsTotal.Add(float64(len(resolved)))
	return res
}

// resolveSpan pins an edit's span against the file as it is now. The span
// from extraction time is trusted only when its content still matches;
// otherwise the literal is searched for by content, first textually and then
// through a structural re-parse.
func (a *Applicator) resolveSpan(path, content string, e Edit) (extract.SourceSpan, error) {
	s := e.Span
	if s.Start >= 0 && s.End <= len(content) && content[s.Start:s.End] == e.Original {
		return s, nil
	}

	// The file moved under us. A unique textual match relocates the span.
	if n := strings.Count(content, e.Original); n == 1 {
		start := strings.Index(content, e.Original)
		return extract.SourceSpan{Start: start, End: start + len(e.Original)}, nil
	}

	// Ambiguous or absent: let the parser find the literal.
	literals, err := a.structural.ExtractFile(path, []byte(content))
	if err != nil {
		return s, errors.AddContext(
			errors.Wrap(err, errors.CodeApplyError, "span relocation re-parse"),
			errors.CtxPath, path)
	}
	var matches []extract.SourceSpan
	for _, lit := range literals {
		if lit.RawText == e.Original {
			matches = append(matches, lit.Span)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return s, errors.AddContext(errors.AddContext(
			errors.Newf(errors.CodeApplyError, "operation text not found in %s; re-run extraction before applying", path),
			errors.CtxOperation, e.OperationID), errors.CtxPath, path)
	default:
		return s, errors.AddContext(errors.AddContext(
			errors.Newf(errors.CodeApplyError, "operation text appears %d times in %s; cannot pick a span", len(matches), path),
			errors.CtxOperation, e.OperationID), errors.CtxPath, path)
	}
}

func checkOverlap(edits []Edit) error {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Span.Start < sorted[j].Span.Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Span.Start < sorted[i-1].Span.End {
			return errors.New(errors.CodeApplyError, fmt.Sprintf(
				"edits for operations %s and %s overlap", sorted[i-1].OperationID, sorted[i].OperationID))
		}
	}
	return nil
}

func filePerm(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
