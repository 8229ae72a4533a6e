// # internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"gqlshift/internal/config"
	"gqlshift/internal/core/errors"
	"gqlshift/internal/extract"
	"gqlshift/internal/fragments"
	"gqlshift/internal/scanner"
	"gqlshift/internal/shared/observability"
	"gqlshift/internal/variants"
)

// Engine merges scanning, fragment resolution and variant expansion into one
// extraction pass. Per-file and per-operation errors accumulate in the
// result and never abort the run.
type Engine struct {
	cfg        *config.Config
	scanner    *scanner.Scanner
	structural *extract.StructuralExtractor
	pattern    *extract.PatternExtractor
	strategy   scanner.Strategy
}

type Result struct {
	Operations []extract.Operation
	Variants   []variants.Variant
	Fragments  *fragments.Registry
	Errors     []error
	Warnings   []extract.Warning
	Stats      extract.Stats
}

func New(cfg *config.Config) (*Engine, error) {
	sc, err := scanner.New(cfg.Extraction.Include, cfg.Exclude.Dirs, cfg.Exclude.Files)
	if err != nil {
		return nil, err
	}
	pattern, err := extract.NewPatternExtractor(cfg.Extraction.MarkerTags)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		scanner:    sc,
		structural: extract.NewStructuralExtractor(extract.NewGrammarLoader(), cfg.Extraction.MarkerTags),
		pattern:    pattern,
		strategy:   scanner.Strategy(cfg.Extraction.Strategy),
	}, nil
}

// Structural exposes the structural extractor for span re-resolution during
// apply.
func (e *Engine) Structural() *extract.StructuralExtractor {
	return e.structural
}

func (e *Engine) Extract(ctx context.Context) (*Result, error) {
	scan, err := e.scanner.Scan(e.cfg.ScanPaths)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "scan source tree")
	}
	res := e.ExtractFiles(ctx, scan.Files)
	for _, w := range scan.Warnings {
		res.Warnings = append(res.Warnings, extract.Warning{Severity: extract.SeverityLow, Message: w})
	}
	return res, nil
}

type fileLiterals struct {
	path     string
	literals []extract.TemplateLiteral
	warning  *extract.Warning
	err      error
}

// ExtractFiles runs the two-phase extraction: every file is read and its
// literals collected before any fragment is inlined, so the registry is
// complete when resolution starts.
func (e *Engine) ExtractFiles(ctx context.Context, files []string) *Result {
	res := &Result{Fragments: fragments.NewRegistry()}

	perFile := e.collectLiterals(ctx, files)
	res.Stats.FilesScanned = len(files)

	// Phase one: populate the registry from every literal in every file.
	for _, fl := range perFile {
		if fl.err != nil {
			res.Errors = append(res.Errors, fl.err)
			res.Stats.FilesFailed++
			continue
		}
		if fl.warning != nil {
			res.Warnings = append(res.Warnings, *fl.warning)
		}
		for _, lit := range fl.literals {
			for _, def := range fragments.ParseDefinitions(lit.RawText, lit.FilePath) {
				if err := res.Fragments.Register(def); err != nil {
					res.Errors = append(res.Errors, err)
					continue
				}
				res.Stats.FragmentsFound++
			}
		}
	}
	observability.FragmentsRegistered.Set(float64(res.Fragments.Len()))

	if err := fragments.BuildGraph(res.Fragments).Validate(); err != nil {
		res.Errors = append(res.Errors, err)
	}

	// Phase two: emit operations and expand variants against the now
	// complete registry.
	inliner := fragments.NewInliner(res.Fragments, e.cfg.Extraction.MaxInlineDepth)
	for _, fl := range perFile {
		for _, lit := range fl.literals {
			op, ok := extract.IdentifyOperation(lit)
			if !ok {
				continue
			}
			e.resolveOperation(&op, inliner, res)
			res.Operations = append(res.Operations, op)
			res.Stats.OperationsFound++
			observability.OperationsExtracted.Inc()

			det := variants.Detect(op.Segments)
			if det.Empty() {
				continue
			}
			vars, err := variants.Generate(op, det, inliner, e.cfg.Extraction.MaxVariants)
			if err != nil {
				res.Errors = append(res.Errors, errors.AddContext(err, errors.CtxOperation, op.Name))
				continue
			}
			res.Variants = append(res.Variants, vars...)
			res.Stats.VariantsExpanded += len(vars)
			observability.VariantsGenerated.Add(float64(len(vars)))
		}
	}

	return res
}

func (e *Engine) resolveOperation(op *extract.Operation, inliner *fragments.Inliner, res *Result) {
	inlined := inliner.Inline(op.RawText)
	op.InlinedText = inlined.Text
	for _, name := range inlined.Missing {
		res.Errors = append(res.Errors, errors.AddContext(
			errors.Newf(errors.CodeFragmentNotFound, "fragment %q is spread in %s but defined nowhere in the scanned set", name, op.FilePath),
			errors.CtxOperation, op.Name))
	}
	for _, name := range inlined.TooDeep {
		res.Warnings = append(res.Warnings, extract.Warning{
			Severity: extract.SeverityMedium,
			Message:  fmt.Sprintf("fragment %q exceeds inline depth %d and was left unresolved", name, e.cfg.Extraction.MaxInlineDepth),
			FilePath: op.FilePath,
		})
	}

	masked := extract.Mask(op.Segments)
	doc, err := extract.ParseDocument(op.FilePath, masked)
	if err != nil {
		res.Warnings = append(res.Warnings, extract.Warning{
			Severity: extract.SeverityMedium,
			Message:  fmt.Sprintf("literal does not parse as GraphQL: %v", err),
			FilePath: op.FilePath,
		})
		return
	}
	op.Document = doc
}

// collectLiterals reads and parses files on a bounded worker pool.
// Extraction itself shares no mutable state across files.
func (e *Engine) collectLiterals(ctx context.Context, files []string) []fileLiterals {
	workers := e.cfg.Extraction.Workers
	if workers < 1 {
		workers = 1
	}

	out := make([]fileLiterals, len(files))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = e.extractFile(path)
		}(i, path)
	}
	wg.Wait()

	// Stable order regardless of completion order.
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (e *Engine) extractFile(path string) fileLiterals {
	fl := fileLiterals{path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file", "path", path, "error", err)
		fl.err = errors.AddContext(errors.Wrap(err, errors.CodeParseError, "read source file"), errors.CtxPath, path)
		return fl
	}

	start := time.Now()
	strategy := e.strategy
	switch strategy {
	case scanner.StrategyPattern:
		fl.literals, fl.err = e.pattern.ExtractFile(path, content)
	case scanner.StrategyStructural:
		fl.literals, fl.err = e.structural.ExtractFile(path, content)
		if fl.err != nil {
			fl.err = errors.AddContext(errors.Wrap(fl.err, errors.CodeParseError, "structural parse"), errors.CtxPath, path)
		}
	default: // hybrid
		fl.literals, err = e.structural.ExtractFile(path, content)
		if err != nil {
			strategy = scanner.StrategyPattern
			fl.warning = &extract.Warning{
				Severity: extract.SeverityLow,
				Message:  fmt.Sprintf("structural parse failed (%v), fell back to pattern strategy", err),
				FilePath: path,
			}
			fl.literals, fl.err = e.pattern.ExtractFile(path, content)
		}
	}
	observability.ExtractionDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
	return fl
}
