package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlshift/internal/config"
	"gqlshift/internal/core/errors"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.ScanPaths = []string{dir}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestExtractResolvesFragmentsAcrossFiles(t *testing.T) {
	// The query file sorts after the fragment file alphabetically reversed:
	// queries.js is scanned after fragments.js either way, but the registry
	// must be complete regardless of order, so spread the definition into
	// the later file.
	dir := writeTree(t, map[string]string{
		"zz_fragments.js": "import { gql } from '@apollo/client';\n" +
			"export const FIELDS = gql`fragment VentureFields on Venture { id name }`;\n",
		"queries.js": "import { gql } from '@apollo/client';\n" +
			"export const Q = gql`query Q { venture { ...VentureFields } }`;\n",
	})

	res, err := newEngine(t, dir).Extract(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	require.Len(t, res.Operations, 1)
	op := res.Operations[0]
	assert.Equal(t, "Q", op.Name)
	assert.Contains(t, op.InlinedText, "... on Venture { id name }")
	assert.Equal(t, []string{"VentureFields"}, op.DependentFragments)
	assert.Equal(t, 2, op.Line)
	assert.NotNil(t, op.Document)

	assert.Equal(t, 1, res.Fragments.Len())
	assert.Equal(t, 2, res.Stats.FilesScanned)
	assert.Equal(t, 1, res.Stats.OperationsFound)
	assert.Equal(t, 1, res.Stats.FragmentsFound)
}

func TestExtractReportsMissingFragment(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"queries.js": "import { gql } from '@apollo/client';\n" +
			"export const Q = gql`query Q { venture { ...Nowhere } }`;\n",
	})

	res, err := newEngine(t, dir).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.IsCode(res.Errors[0], errors.CodeFragmentNotFound))

	// The spread stays in place; extraction still emits the operation.
	require.Len(t, res.Operations, 1)
	assert.Contains(t, res.Operations[0].InlinedText, "...Nowhere")
}

func TestExtractDetectsFragmentCycle(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"fragments.js": "import { gql } from '@apollo/client';\n" +
			"export const A = gql`fragment FragA on Venture { id ...FragB }`;\n" +
			"export const B = gql`fragment FragB on Venture { name ...FragA }`;\n",
	})

	res, err := newEngine(t, dir).Extract(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)

	found := false
	for _, e := range res.Errors {
		if errors.IsCode(e, errors.CodeFragmentCycle) {
			found = true
		}
	}
	assert.True(t, found, "cycle must surface as FRAGMENT_CYCLE")
}

func TestExtractExpandsVariants(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"queries.js": "import { gql } from '@apollo/client';\n" +
			"export const FA = gql`fragment FragA on Venture { id }`;\n" +
			"export const FB = gql`fragment FragB on Venture { name }`;\n" +
			"export const Q = gql`query Q { venture { ...${flag ? 'FragA' : 'FragB'} } }`;\n",
	})

	res, err := newEngine(t, dir).Extract(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	require.Len(t, res.Variants, 2)
	assert.Equal(t, 2, res.Stats.VariantsExpanded)
	for _, v := range res.Variants {
		assert.Equal(t, res.Operations[0].ID, v.OriginalOperationID)
		assert.NotContains(t, v.FullyResolvedText, "${")
	}
}

func TestHybridFallsBackToPattern(t *testing.T) {
	// Broken host syntax defeats the structural parser; the pattern
	// strategy still finds the tagged literal.
	dir := writeTree(t, map[string]string{
		"broken.js": "const x = ((;\n" +
			"export const Q = gql`query Q { venture { id } }`;\n",
	})

	cfg := config.Default()
	cfg.ScanPaths = []string{dir}
	cfg.Extraction.Strategy = "hybrid"
	e, err := New(cfg)
	require.NoError(t, err)

	res, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, "Q", res.Operations[0].Name)
}

func TestStructuralStrategyReportsUnreadableFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"ok.js": "import { gql } from '@apollo/client';\n" +
			"export const Q = gql`query Q { id }`;\n",
	})

	cfg := config.Default()
	cfg.ScanPaths = []string{dir}
	e, err := New(cfg)
	require.NoError(t, err)

	res := e.ExtractFiles(context.Background(), []string{
		filepath.Join(dir, "ok.js"),
		filepath.Join(dir, "missing.js"),
	})
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.IsCode(res.Errors[0], errors.CodeParseError))
	assert.Equal(t, 1, res.Stats.FilesFailed)

	// The readable file still produced its operation.
	assert.Len(t, res.Operations, 1)
}

func TestExtractSkipsNonGraphQLLiterals(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"styles.js": "const styled = (s) => s;\n" +
			"export const css = styled`color: red;`;\n",
	})

	res, err := newEngine(t, dir).Extract(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Operations, "untagged literals never become operations")
}
