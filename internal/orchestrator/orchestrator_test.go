package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlshift/internal/config"
	"gqlshift/internal/rollout"
	"gqlshift/internal/transform"
)

const orchSchema = `
type Query {
  venture(id: ID!): Venture
}

type Venture {
  id: ID!
  logoUrl: String @deprecated(reason: "Use profile.logoUrl instead")
  shortId: String @deprecated(reason: "no longer needed")
  name: String
  profile: Profile
}

type Profile {
  logoUrl: String
}
`

const orchSource = "import { gql } from '@apollo/client';\n" +
	"export const GET_VENTURE = gql`\n" +
	"  query GetVenture($id: ID!) {\n" +
	"    venture(id: $id) {\n" +
	"      id\n" +
	"      logoUrl\n" +
	"    }\n" +
	"  }\n" +
	"`;\n"

type recordingValidator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (v *recordingValidator) Validate(_ context.Context, operationID, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, operationID)
	return v.err
}

func setup(t *testing.T, source string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src", "queries.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	require.NoError(t, os.WriteFile(srcPath, []byte(source), 0o644))

	schemaPath := filepath.Join(dir, "schema.graphql")
	require.NoError(t, os.WriteFile(schemaPath, []byte(orchSchema), 0o644))

	cfg := config.Default()
	cfg.ScanPaths = []string{filepath.Join(dir, "src")}
	cfg.Schema.Path = schemaPath
	return cfg, srcPath
}

func TestApplyAllRewritesSource(t *testing.T) {
	cfg, srcPath := setup(t, orchSource)
	validator := &recordingValidator{}
	o, err := New(cfg, validator)
	require.NoError(t, err)

	report, err := o.ApplyAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Transforms, 1)
	require.Len(t, report.Files, 1)
	require.NoError(t, report.Files[0].Err)
	assert.Equal(t, 1, report.Files[0].EditsApplied)
	assert.Len(t, validator.calls, 1, "every transformed operation is validated once")

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Contains(t, string(got), "profile { logoUrl }")
	assert.Contains(t, string(got), "import { gql }")

	state, ok := o.Rollouts().State(report.Transforms[0].OperationID)
	require.True(t, ok)
	assert.Equal(t, rollout.StateProposed, state)
}

func TestApplyAllPreviewDoesNotWrite(t *testing.T) {
	cfg, srcPath := setup(t, orchSource)
	o, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := o.ApplyAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Contains(t, report.Files[0].Preview, "profile { logoUrl }")

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, orchSource, string(got))
}

func TestApplyHoldsBreakingChanges(t *testing.T) {
	src := "import { gql } from '@apollo/client';\n" +
		"export const Q = gql`\n" +
		"  query Q {\n" +
		"    venture(id: \"1\") {\n" +
		"      shortId\n" +
		"    }\n" +
		"  }\n" +
		"`;\n"
	cfg, srcPath := setup(t, src)
	o, err := New(cfg, nil)
	require.NoError(t, err)

	report, err := o.ApplyAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Transforms, 1)
	assert.Equal(t, 75, report.Transforms[0].Confidence)
	assert.Empty(t, report.Files, "semi-automatic results must not be auto-applied")

	state, ok := o.Rollouts().State(report.Transforms[0].OperationID)
	require.True(t, ok)
	assert.Equal(t, rollout.StatePendingReview, state)

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, src, string(got))
}

func TestApplyOperationAfterReview(t *testing.T) {
	src := "import { gql } from '@apollo/client';\n" +
		"export const Q = gql`\n" +
		"  query Q {\n" +
		"    venture(id: \"1\") {\n" +
		"      shortId\n" +
		"    }\n" +
		"  }\n" +
		"`;\n"
	cfg, srcPath := setup(t, src)
	o, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	analysis, err := o.Analyze(ctx)
	require.NoError(t, err)
	results, errs := o.Transform(ctx, analysis)
	require.Empty(t, errs)
	require.Len(t, results, 1)

	fr := o.ApplyOperation(ctx, analysis, results[0])
	require.NoError(t, fr.Err)
	assert.Equal(t, 1, fr.EditsApplied)

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Contains(t, string(got), "# deprecated(no longer needed): shortId")
}

func TestValidateCoversVariants(t *testing.T) {
	src := "import { gql } from '@apollo/client';\n" +
		"export const FA = gql`fragment FragA on Venture { id }`;\n" +
		"export const FB = gql`fragment FragB on Venture { name }`;\n" +
		"export const Q = gql`query Q { venture(id: \"1\") { ...${flag ? 'FragA' : 'FragB'} } }`;\n"
	cfg, _ := setup(t, src)
	validator := &recordingValidator{}
	o, err := New(cfg, validator)
	require.NoError(t, err)

	ctx := context.Background()
	analysis, err := o.Analyze(ctx)
	require.NoError(t, err)
	require.Len(t, analysis.Extraction.Variants, 2)

	results, errs := o.Transform(ctx, analysis)
	require.Empty(t, errs)

	warnings := o.Validate(ctx, analysis, results)
	assert.Empty(t, warnings)
	assert.Len(t, validator.calls, len(results)+2, "each variant branch is validated through its resolved text")

	failing := &recordingValidator{err: assert.AnError}
	o2, err := New(cfg, failing)
	require.NoError(t, err)
	warnings = o2.Validate(ctx, analysis, results)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "variant")
}

func TestRollbackAllSweepsUnhealthy(t *testing.T) {
	cfg, _ := setup(t, orchSource)
	o, err := New(cfg, nil)
	require.NoError(t, err)

	m := o.Rollouts()
	m.Admit("op-healthy", transform.CategoryAutomatic)
	m.Admit("op-sick", transform.CategoryAutomatic)
	for _, id := range []string{"op-healthy", "op-sick"} {
		_, err := m.CreateRollbackPlan(id, rollout.StrategyImmediate)
		require.NoError(t, err)
		require.NoError(t, m.StartRollout(id, 10))
	}
	m.ReportSignals("op-sick", rollout.Signals{ErrorRate: 0.9})

	rolledBack, errs := o.RollbackAll()
	require.Empty(t, errs)
	assert.Equal(t, []string{"op-sick"}, rolledBack)

	state, _ := m.State("op-healthy")
	assert.Equal(t, rollout.StateRollingOut, state)
	state, _ = m.State("op-sick")
	assert.Equal(t, rollout.StateRolledBack, state)
}

func TestGetHealth(t *testing.T) {
	cfg, _ := setup(t, orchSource)
	o, err := New(cfg, nil)
	require.NoError(t, err)

	m := o.Rollouts()
	m.Admit("op", transform.CategoryAutomatic)
	_, err = m.CreateRollbackPlan("op", rollout.StrategyImmediate)
	require.NoError(t, err)
	require.NoError(t, m.StartRollout("op", 10))

	health, err := o.GetHealth("op")
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.True(t, health[0].Healthy)

	_, err = o.GetHealth("missing")
	require.Error(t, err)
}
