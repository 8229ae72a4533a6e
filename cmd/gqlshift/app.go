// # cmd/gqlshift/app.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gqlshift/internal/config"
	"gqlshift/internal/data/artifacts"
	"gqlshift/internal/orchestrator"
	"gqlshift/internal/report"
	"gqlshift/internal/rollout"
	"gqlshift/internal/scanner"
	"gqlshift/internal/transform"
	"gqlshift/internal/watcher"
)

// App wires the orchestrator, the artifact store and watch mode together for
// the CLI.
type App struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store *artifacts.Store
	watch *watcher.Watcher
}

func NewApp(cfg *config.Config) (*App, error) {
	orch, err := orchestrator.New(cfg, nil)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, orch: orch}
	if cfg.Artifacts.Path != "" {
		store, err := artifacts.Open(cfg.Artifacts.Path)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.watch != nil {
		_ = a.watch.Close()
	}
}

// Extract runs analysis only and prints what was found.
func (a *App) Extract(ctx context.Context) error {
	analysis, err := a.orch.Analyze(ctx)
	if err != nil {
		return err
	}

	stats := analysis.Extraction.Stats
	fmt.Printf("Scanned %d files: %d operations, %d fragments, %d variants, %d deprecation rules\n",
		stats.FilesScanned, stats.OperationsFound, stats.FragmentsFound, stats.VariantsExpanded, analysis.Rules.Len())
	for _, op := range analysis.Extraction.Operations {
		name := op.Name
		if name == "" {
			name = "(anonymous)"
		}
		fmt.Printf("   %s %s  %s:%d\n", op.Kind, name, op.FilePath, op.Line)
	}
	for _, err := range analysis.Extraction.Errors {
		fmt.Printf("   error: %v\n", err)
	}
	return nil
}

// Transform runs analysis and transformation, printing the proposed changes
// without touching any file.
func (a *App) Transform(ctx context.Context) error {
	analysis, err := a.orch.Analyze(ctx)
	if err != nil {
		return err
	}
	results, errs := a.orch.Transform(ctx, analysis)
	report.Changes(os.Stdout, results)
	for _, e := range errs {
		fmt.Printf("   error: %v\n", e)
	}
	return nil
}

// Validate runs the pipeline up to external validation and reports warnings.
func (a *App) Validate(ctx context.Context) error {
	analysis, err := a.orch.Analyze(ctx)
	if err != nil {
		return err
	}
	results, errs := a.orch.Transform(ctx, analysis)
	warnings := a.orch.Validate(ctx, analysis, results)
	fmt.Printf("Validated %d transformed operations and %d variants: %d warnings, %d transform errors\n",
		len(results), len(analysis.Extraction.Variants), len(warnings), len(errs))
	for _, w := range warnings {
		fmt.Printf("   [%s] %s\n", w.Severity, w.Message)
	}
	return nil
}

// Apply runs the full pipeline and persists the run when a store is
// configured. A run that accumulated errors fails the command unless
// skipInvalid is set, so CI callers see a non-zero exit on any failed
// validation or application.
func (a *App) Apply(ctx context.Context, preview, skipInvalid bool) error {
	start := time.Now()
	rep, err := a.orch.ApplyAll(ctx, preview)
	if err != nil {
		return err
	}
	report.Summary(os.Stdout, rep, time.Since(start).Round(time.Millisecond),
		a.cfg.Confidence.Automatic, a.cfg.Confidence.SemiAutomatic)

	if a.store != nil && !preview {
		a.persistRun(start, rep)
	}
	if len(rep.Errors) > 0 && !skipInvalid {
		return fmt.Errorf("run finished with %d errors (pass -skip-invalid to continue anyway)", len(rep.Errors))
	}
	return nil
}

func (a *App) persistRun(start time.Time, rep *orchestrator.RunReport) {
	stats := rep.Analysis.Extraction.Stats
	runID, err := a.store.SaveRun(artifacts.Run{
		Started:          start,
		Finished:         time.Now(),
		FilesScanned:     stats.FilesScanned,
		OperationsFound:  stats.OperationsFound,
		FragmentsFound:   stats.FragmentsFound,
		VariantsExpanded: stats.VariantsExpanded,
		ErrorCount:       len(rep.Errors),
	})
	if err != nil {
		slog.Error("failed to persist run", "error", err)
		return
	}

	opPaths := make(map[string]string)
	for _, op := range rep.Analysis.Extraction.Operations {
		opPaths[op.ID] = op.FilePath
	}
	records := make([]artifacts.TransformationRecord, 0, len(rep.Transforms))
	for _, res := range rep.Transforms {
		category := transform.Categorize(res.Confidence, a.cfg.Confidence.Automatic, a.cfg.Confidence.SemiAutomatic)
		records = append(records, artifacts.TransformationRecord{
			OperationID: res.OperationID,
			FilePath:    opPaths[res.OperationID],
			Confidence:  res.Confidence,
			Category:    string(category),
			Original:    res.Original,
			Transformed: res.Transformed,
			ChangeCount: len(res.Changes),
		})
	}
	if err := a.store.SaveTransformations(runID, records); err != nil {
		slog.Error("failed to persist transformations", "error", err)
	}
}

// RolloutStatus prints flag and health state for every known operation.
func (a *App) RolloutStatus() {
	snapshots := a.loadRolloutSnapshots()
	if len(snapshots) == 0 {
		fmt.Println("No rollout state recorded.")
		return
	}
	for _, s := range snapshots {
		fmt.Printf("   %s  state=%s percentage=%d enabled=%v\n", s.OperationID, s.State, s.Percentage, s.Enabled)
	}
}

func (a *App) loadRolloutSnapshots() []artifacts.RolloutSnapshot {
	if a.store == nil {
		return nil
	}
	snapshots, err := a.store.LoadRolloutStates()
	if err != nil {
		slog.Error("failed to load rollout state", "error", err)
		return nil
	}
	return snapshots
}

// Rollback reverts one operation, or every unhealthy one when id is empty.
func (a *App) Rollback(id string) error {
	if id != "" {
		if err := a.orch.RollbackOperation(id); err != nil {
			return err
		}
		a.snapshotRollout(id)
		fmt.Printf("Rolled back %s\n", id)
		return nil
	}

	rolledBack, errs := a.orch.RollbackAll()
	for _, op := range rolledBack {
		a.snapshotRollout(op)
		fmt.Printf("Rolled back %s\n", op)
	}
	for _, err := range errs {
		fmt.Printf("   error: %v\n", err)
	}
	return nil
}

func (a *App) snapshotRollout(id string) {
	if a.store == nil {
		return
	}
	state, ok := a.orch.Rollouts().State(id)
	if !ok {
		return
	}
	flag, _ := a.orch.Rollouts().Flag(id)
	err := a.store.SaveRolloutState(artifacts.RolloutSnapshot{
		OperationID: id,
		State:       string(state),
		Percentage:  flag.RolloutPercentage,
		Enabled:     flag.Enabled,
	})
	if err != nil {
		slog.Error("failed to persist rollout state", "error", err)
	}
}

func (a *App) admitFromStore(id string) error {
	if a.store == nil {
		return fmt.Errorf("operation %s is unknown; run apply first", id)
	}
	rec, ok, err := a.store.LoadLatestTransformation(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("operation %s has no recorded transformation; run apply first", id)
	}
	a.orch.Rollouts().Admit(id, transform.Category(rec.Category))
	return nil
}

// Watch re-runs the pipeline in preview mode whenever source files change,
// and drives the rollout ticker until the context ends.
func (a *App) Watch(ctx context.Context) error {
	matcher, err := scanner.NewMatcher(a.cfg.Extraction.Include, a.cfg.Exclude.Dirs, a.cfg.Exclude.Files)
	if err != nil {
		return err
	}
	w, err := watcher.NewWatcher(a.cfg.Watch.Debounce, matcher,
		func(paths []string) {
			slog.Info("source changed, re-running analysis", "files", len(paths))
			// Watch mode keeps running on per-run errors; the summary
			// already reported them.
			if err := a.Apply(ctx, true, true); err != nil {
				slog.Error("watch run failed", "error", err)
			}
		})
	if err != nil {
		return err
	}
	a.watch = w

	if err := w.Watch(a.cfg.ScanPaths); err != nil {
		return err
	}

	go a.orch.Rollouts().Run(ctx)

	slog.Info("watching", "paths", a.cfg.ScanPaths, "debounce", a.cfg.Watch.Debounce)
	<-ctx.Done()
	return nil
}

// StartRollout begins serving one reviewed operation, creating the required
// rollback plan first. Operations from earlier runs are re-admitted from the
// artifact store so the command works across process restarts.
func (a *App) StartRollout(id string, strategy rollout.Strategy) error {
	m := a.orch.Rollouts()
	if _, ok := m.State(id); !ok {
		if err := a.admitFromStore(id); err != nil {
			return err
		}
	}
	plan, err := m.CreateRollbackPlan(id, strategy)
	if err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.SaveRollbackPlan(plan); err != nil {
			slog.Error("failed to persist rollback plan", "error", err)
		}
	}
	if err := m.StartRollout(id, a.cfg.Rollout.InitialPercentage); err != nil {
		return err
	}
	a.snapshotRollout(id)
	fmt.Printf("Rollout started for %s at %d%% (plan %s, %s)\n", id, a.cfg.Rollout.InitialPercentage, plan.ID, strategy)
	return nil
}
