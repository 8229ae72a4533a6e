package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsSource = "import { gql } from '@apollo/client';\n" +
	"const notAQuery = `just a string`;\n" +
	"export const GET_VENTURE = gql`\n" +
	"  query GetVenture($id: ID!) {\n" +
	"    venture(id: $id) { id logoUrl ...${extra} }\n" +
	"  }\n" +
	"`;\n"

func TestStructuralExtract(t *testing.T) {
	e := NewStructuralExtractor(NewGrammarLoader(), []string{"gql", "graphql"})

	literals, err := e.ExtractFile("src/queries.js", []byte(jsSource))
	require.NoError(t, err)
	require.Len(t, literals, 1, "untagged literals must be ignored")

	lit := literals[0]
	assert.Equal(t, "gql", lit.Tag)
	assert.Equal(t, 3, lit.Line)
	assert.Contains(t, lit.RawText, "query GetVenture")

	// The span addresses the literal content exactly, backticks excluded.
	assert.Equal(t, lit.RawText, jsSource[lit.Span.Start:lit.Span.End])

	require.Len(t, lit.Segments, 3)
	assert.Equal(t, "extra", lit.Segments[1].Expr)
}

func TestStructuralExtractMemberExpressionTag(t *testing.T) {
	src := "const q = Apollo.gql`query Q { id }`;\n"
	e := NewStructuralExtractor(NewGrammarLoader(), []string{"gql"})

	literals, err := e.ExtractFile("a.js", []byte(src))
	require.NoError(t, err)
	require.Len(t, literals, 1)
	assert.Equal(t, "gql", literals[0].Tag)
}

func TestStructuralExtractTypeScript(t *testing.T) {
	src := "const q: DocumentNode = gql`query Q { id }`;\n"
	e := NewStructuralExtractor(NewGrammarLoader(), []string{"gql"})

	literals, err := e.ExtractFile("a.ts", []byte(src))
	require.NoError(t, err)
	require.Len(t, literals, 1)
}

func TestParseCheckRejectsBrokenSource(t *testing.T) {
	e := NewStructuralExtractor(NewGrammarLoader(), []string{"gql"})

	ok, err := e.ParseCheck("a.js", []byte("const x = 1;\n"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.ParseCheck("a.js", []byte("const x = ((;\n"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPatternExtract(t *testing.T) {
	e, err := NewPatternExtractor([]string{"gql", "graphql"})
	require.NoError(t, err)

	literals, err := e.ExtractFile("src/queries.js", []byte(jsSource))
	require.NoError(t, err)
	require.Len(t, literals, 1)

	lit := literals[0]
	assert.Equal(t, "gql", lit.Tag)
	assert.Equal(t, lit.RawText, jsSource[lit.Span.Start:lit.Span.End])
}

func TestPatternAndStructuralAgree(t *testing.T) {
	s := NewStructuralExtractor(NewGrammarLoader(), []string{"gql"})
	p, err := NewPatternExtractor([]string{"gql"})
	require.NoError(t, err)

	sl, err := s.ExtractFile("a.js", []byte(jsSource))
	require.NoError(t, err)
	pl, err := p.ExtractFile("a.js", []byte(jsSource))
	require.NoError(t, err)

	require.Len(t, sl, 1)
	require.Len(t, pl, 1)
	assert.Equal(t, sl[0].Span, pl[0].Span)
	assert.Equal(t, sl[0].RawText, pl[0].RawText)
}

func TestSplitSegmentsBalancesBraces(t *testing.T) {
	segments := splitSegments("a ${fn({ x: { y: 1 } })} b")
	require.Len(t, segments, 3)
	assert.Equal(t, "a ", segments[0].Text)
	assert.Equal(t, "fn({ x: { y: 1 } })", segments[1].Expr)
	assert.Equal(t, " b", segments[2].Text)
}

func TestSplitSegmentsUnterminated(t *testing.T) {
	segments := splitSegments("a ${broken")
	require.Len(t, segments, 1)
	assert.Equal(t, "a ${broken", segments[0].Text)
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"a.js": "javascript", "a.jsx": "javascript", "a.mjs": "javascript",
		"a.ts": "typescript", "a.mts": "typescript",
		"a.tsx": "tsx",
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
	assert.Equal(t, "", DetectLanguage("a.md"))
}
