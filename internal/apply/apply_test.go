package apply

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlshift/internal/core/errors"
	"gqlshift/internal/extract"
)

const sourceTemplate = "import { gql } from '@apollo/client';\n" +
	"// keep this comment\n" +
	"export const Q = gql`query Q { venture { logoUrl } }`;\n" +
	"const unrelated = 1;\n"

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.js")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func extractOne(t *testing.T, path string) extract.TemplateLiteral {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	e := extract.NewStructuralExtractor(extract.NewGrammarLoader(), []string{"gql"})
	literals, err := e.ExtractFile(path, content)
	require.NoError(t, err)
	require.Len(t, literals, 1)
	return literals[0]
}

func newApplicator() *Applicator {
	return New(extract.NewStructuralExtractor(extract.NewGrammarLoader(), []string{"gql"}))
}

func TestApplyRewritesOnlyTheSpan(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	transformed := strings.Replace(lit.RawText, "logoUrl", "profile { logoUrl }", 1)
	results := newApplicator().Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span,
		Original:    lit.RawText,
		Transformed: transformed,
	}})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].EditsApplied)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "profile { logoUrl }")
	assert.Contains(t, string(got), "// keep this comment", "surrounding source must be untouched")
	assert.Contains(t, string(got), "const unrelated = 1;")
}

func TestApplyRelocatesStaleSpan(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	// The file grew above the literal after extraction.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append([]byte("// new header line\n"), content...), 0o644))

	transformed := strings.Replace(lit.RawText, "logoUrl", "name", 1)
	results := newApplicator().Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span, // stale
		Original:    lit.RawText,
		Transformed: transformed,
	}})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "query Q { venture { name } }")
}

func TestApplySkipsVanishedOperation(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	require.NoError(t, os.WriteFile(path, []byte("export const nothing = 1;\n"), 0o644))

	results := newApplicator().Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span,
		Original:    lit.RawText,
		Transformed: "query Q { id }",
	}})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 0, results[0].EditsApplied)
	require.Len(t, results[0].Skipped, 1)
	assert.True(t, errors.IsCode(results[0].Skipped[0], errors.CodeApplyError))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "export const nothing = 1;\n", string(got))
}

func TestApplySkipKeepsOtherEdits(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	results := newApplicator().Apply([]Edit{
		{
			OperationID: "gone",
			FilePath:    path,
			Span:        extract.SourceSpan{Start: 0, End: 5},
			Original:    "query Gone { id }",
			Transformed: "query Gone { name }",
		},
		{
			OperationID: "live",
			FilePath:    path,
			Span:        lit.Span,
			Original:    lit.RawText,
			Transformed: strings.Replace(lit.RawText, "logoUrl", "name", 1),
		},
	})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].EditsApplied)
	assert.Len(t, results[0].Skipped, 1)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "venture { name }")
}

func TestApplyPreviewLeavesDiskUntouched(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	a := newApplicator()
	a.Preview = true
	results := a.Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span,
		Original:    lit.RawText,
		Transformed: strings.Replace(lit.RawText, "logoUrl", "name", 1),
	}})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Contains(t, results[0].Preview, "venture { name }")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sourceTemplate, string(got))
}

func TestApplyWritesBackup(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	a := newApplicator()
	a.Backup = true
	results := a.Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span,
		Original:    lit.RawText,
		Transformed: strings.Replace(lit.RawText, "logoUrl", "name", 1),
	}})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, sourceTemplate, string(bak))
}

func TestApplyRejectsBrokenRewrite(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	results := newApplicator().Apply([]Edit{{
		OperationID: "op-1",
		FilePath:    path,
		Span:        lit.Span,
		Original:    lit.RawText,
		// A backtick inside the replacement terminates the literal early
		// and breaks the host file.
		Transformed: "query Q { ` } ",
	}})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sourceTemplate, string(got), "a failed validation must not write")
}

func TestApplyMultipleEditsOneFile(t *testing.T) {
	src := "import { gql } from '@apollo/client';\n" +
		"export const A = gql`query A { venture { logoUrl } }`;\n" +
		"export const B = gql`query B { venture { logoUrl } }`;\n"
	path := writeSource(t, src)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	e := extract.NewStructuralExtractor(extract.NewGrammarLoader(), []string{"gql"})
	literals, err := e.ExtractFile(path, content)
	require.NoError(t, err)
	require.Len(t, literals, 2)

	edits := make([]Edit, len(literals))
	for i, lit := range literals {
		edits[i] = Edit{
			OperationID: lit.RawText,
			FilePath:    path,
			Span:        lit.Span,
			Original:    lit.RawText,
			Transformed: strings.Replace(lit.RawText, "logoUrl", "name", 1),
		}
	}

	results := newApplicator().Apply(edits)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].EditsApplied)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(got), "venture { name }"))
	assert.NotContains(t, string(got), "logoUrl")
}

func TestApplyOverlapDetected(t *testing.T) {
	path := writeSource(t, sourceTemplate)
	lit := extractOne(t, path)

	edits := []Edit{
		{OperationID: "a", FilePath: path, Span: lit.Span, Original: lit.RawText, Transformed: "x"},
		{OperationID: "b", FilePath: path, Span: lit.Span, Original: lit.RawText, Transformed: "y"},
	}
	results := newApplicator().Apply(edits)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.True(t, errors.IsCode(results[0].Err, errors.CodeApplyError))
}
