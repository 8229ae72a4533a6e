// # internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gqlshift/internal/apply"
	"gqlshift/internal/config"
	"gqlshift/internal/core/errors"
	"gqlshift/internal/engine"
	"gqlshift/internal/extract"
	"gqlshift/internal/rollout"
	"gqlshift/internal/schema"
	"gqlshift/internal/shared/observability"
	"gqlshift/internal/shared/util"
	"gqlshift/internal/transform"
)

// Validator checks a transformed operation against a live schema or API.
// External collaborator; implementations own their transport.
type Validator interface {
	Validate(ctx context.Context, operationID, transformedText string) error
}

// Orchestrator sequences extract, transform, validate, apply and rollout.
// Each stage is independently callable and hands only its output forward.
type Orchestrator struct {
	cfg        *config.Config
	engine     *engine.Engine
	applicator *apply.Applicator
	rollouts   *rollout.Manager
	validator  Validator
	limiter    *util.Limiter
}

func New(cfg *config.Config, validator Validator) (*Orchestrator, error) {
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:        cfg,
		engine:     eng,
		applicator: apply.New(eng.Structural()),
		rollouts:   rollout.NewManager(cfg.Rollout),
		validator:  validator,
		limiter:    util.NewLimiter(cfg.Validation.RatePerSec, cfg.Validation.Concurrency),
	}, nil
}

func (o *Orchestrator) Rollouts() *rollout.Manager {
	return o.rollouts
}

// SetBackup controls whether the applicator keeps .bak copies of rewritten
// files.
func (o *Orchestrator) SetBackup(enabled bool) {
	o.applicator.Backup = enabled
}

// Analysis pairs the extraction result with the schema and the rule set
// derived from it. It is the sole input to the transform stage.
type Analysis struct {
	Extraction *engine.Result
	Schema     *ast.Schema
	Rules      *schema.RuleSet
}

// Analyze runs extraction and deprecation analysis. Per-file errors stay in
// the result; only a missing or unparseable schema is fatal.
func (o *Orchestrator) Analyze(ctx context.Context) (*Analysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "orchestrator.analyze")
	defer span.End()

	s, err := schema.LoadFile(o.cfg.Schema.Path)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxStage, "analyze")
	}
	rules := schema.Analyze(s)

	res, err := o.engine.Extract(ctx)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxStage, "analyze")
	}
	span.SetAttributes(
		attribute.Int("operations", len(res.Operations)),
		attribute.Int("rules", rules.Len()),
	)
	return &Analysis{Extraction: res, Schema: s, Rules: rules}, nil
}

// Transform rewrites every extracted operation against the rule set.
// Transformation is pure per operation and runs concurrently. No-op results
// are dropped here; they leave the pipeline.
func (o *Orchestrator) Transform(ctx context.Context, analysis *Analysis) ([]transform.Result, []error) {
	_, span := observability.Tracer.Start(ctx, "orchestrator.transform")
	defer span.End()

	tr := transform.New(analysis.Rules, analysis.Schema)
	ops := analysis.Extraction.Operations

	results := make([]transform.Result, len(ops))
	errs := make([]error, len(ops))
	var wg sync.WaitGroup
	for i := range ops {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tr.Transform(ops[i])
		}(i)
	}
	wg.Wait()

	var out []transform.Result
	var failed []error
	for i := range ops {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		if results[i].IsNoop() {
			continue
		}
		out = append(out, results[i])
	}
	span.SetAttributes(attribute.Int("transformed", len(out)))
	return out, failed
}

// Validate runs the external validator over transformed operations and over
// every expanded variant, bounded by the configured rate and a per-call
// timeout. Each variant is checked through its fully resolved text so both
// branches of a conditional template get validated, not just the template.
// Timeouts and validator errors come back as warnings, never failing the
// pipeline.
func (o *Orchestrator) Validate(ctx context.Context, analysis *Analysis, results []transform.Result) []extract.Warning {
	if o.validator == nil {
		return nil
	}
	ctx, span := observability.Tracer.Start(ctx, "orchestrator.validate")
	defer span.End()

	var mu sync.Mutex
	var warnings []extract.Warning
	var wg sync.WaitGroup

	check := func(id, text, label string) {
		defer wg.Done()
		if err := o.limiter.Wait(ctx, 1); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Validation.Timeout)
		defer cancel()
		if err := o.validator.Validate(callCtx, id, text); err != nil {
			mu.Lock()
			warnings = append(warnings, extract.Warning{
				Severity: extract.SeverityMedium,
				Message:  "validation failed for " + label + ": " + err.Error(),
			})
			mu.Unlock()
		}
	}

	for _, res := range results {
		wg.Add(1)
		go check(res.OperationID, res.Transformed, "operation "+res.OperationID)
	}
	for _, v := range analysis.Extraction.Variants {
		wg.Add(1)
		go check(v.ID, v.FullyResolvedText, "variant "+v.ID+" of operation "+v.OriginalOperationID)
	}
	wg.Wait()
	return warnings
}

// Apply writes transformed operations whose confidence gates allow it back
// into source. Operations are admitted to the rollout machine here; only
// automatic-category results produce edits.
func (o *Orchestrator) Apply(ctx context.Context, analysis *Analysis, results []transform.Result, preview bool) []apply.FileResult {
	_, span := observability.Tracer.Start(ctx, "orchestrator.apply")
	defer span.End()

	opByID := make(map[string]extract.Operation, len(analysis.Extraction.Operations))
	for _, op := range analysis.Extraction.Operations {
		opByID[op.ID] = op
	}

	var edits []apply.Edit
	for _, res := range results {
		category := transform.Categorize(res.Confidence, o.cfg.Confidence.Automatic, o.cfg.Confidence.SemiAutomatic)
		state := o.rollouts.Admit(res.OperationID, category)
		if category != transform.CategoryAutomatic {
			slog.Info("operation held for review", "operation", res.OperationID, "confidence", res.Confidence, "state", state)
			continue
		}
		op, ok := opByID[res.OperationID]
		if !ok {
			continue
		}
		edits = append(edits, apply.Edit{
			OperationID: res.OperationID,
			FilePath:    op.FilePath,
			Span:        op.Span,
			Original:    op.RawText,
			Transformed: res.Transformed,
		})
	}

	o.applicator.Preview = preview
	return o.applicator.Apply(edits)
}

// ApplyOperation applies a single transformed operation regardless of its
// file neighbors. Used by the semi-automatic review flow after sign-off.
func (o *Orchestrator) ApplyOperation(ctx context.Context, analysis *Analysis, res transform.Result) apply.FileResult {
	_, span := observability.Tracer.Start(ctx, "orchestrator.apply_operation",
		trace.WithAttributes(attribute.String("operation", res.OperationID)))
	defer span.End()

	for _, op := range analysis.Extraction.Operations {
		if op.ID != res.OperationID {
			continue
		}
		results := o.applicator.Apply([]apply.Edit{{
			OperationID: res.OperationID,
			FilePath:    op.FilePath,
			Span:        op.Span,
			Original:    op.RawText,
			Transformed: res.Transformed,
		}})
		return results[0]
	}
	return apply.FileResult{Err: errors.AddContext(
		errors.New(errors.CodeApplyError, "operation not present in analysis"),
		errors.CtxOperation, res.OperationID)}
}

// ApplyAll is the end-to-end pipeline: analyze, transform, validate, apply.
// Stage errors accumulate; a whole-run failure only happens before any
// per-file work starts.
func (o *Orchestrator) ApplyAll(ctx context.Context, preview bool) (*RunReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "orchestrator.apply_all")
	defer span.End()

	analysis, err := o.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	results, transformErrs := o.Transform(ctx, analysis)
	warnings := o.Validate(ctx, analysis, results)
	fileResults := o.Apply(ctx, analysis, results, preview)

	report := &RunReport{
		Analysis:   analysis,
		Transforms: results,
		Files:      fileResults,
		Errors:     append(analysis.Extraction.Errors, transformErrs...),
		Warnings:   append(analysis.Extraction.Warnings, warnings...),
	}
	for _, fr := range fileResults {
		if fr.Err != nil {
			report.Errors = append(report.Errors, fr.Err)
		}
		report.Errors = append(report.Errors, fr.Skipped...)
	}
	return report, nil
}

// RunReport aggregates everything a run produced for reporting and
// persistence.
type RunReport struct {
	Analysis   *Analysis
	Transforms []transform.Result
	Files      []apply.FileResult
	Errors     []error
	Warnings   []extract.Warning
}

// GetHealth evaluates one operation, or all in-flight operations when the
// ID is empty.
func (o *Orchestrator) GetHealth(operationID string) ([]rollout.Health, error) {
	if operationID == "" {
		return o.rollouts.CheckAll(), nil
	}
	h, err := o.rollouts.CheckHealth(operationID)
	if err != nil {
		return nil, err
	}
	return []rollout.Health{h}, nil
}

// RollbackOperation reverts one operation. Idempotent.
func (o *Orchestrator) RollbackOperation(operationID string) error {
	return o.rollouts.Rollback(operationID)
}

// RollbackAll reverts every unhealthy in-flight operation and reports which
// ones were rolled back. Errors on individual operations accumulate rather
// than aborting the sweep.
func (o *Orchestrator) RollbackAll() (rolledBack []string, errs []error) {
	for _, h := range o.rollouts.CheckAll() {
		if h.Healthy {
			continue
		}
		if err := o.rollouts.Rollback(h.OperationID); err != nil {
			errs = append(errs, err)
			continue
		}
		rolledBack = append(rolledBack, h.OperationID)
	}
	return rolledBack, errs
}
