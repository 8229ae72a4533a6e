package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyOperationKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind OperationKind
		name string
	}{
		{"query GetVenture { venture { id } }", KindQuery, "GetVenture"},
		{"\n  mutation UpdateVenture($in: Input!) { update(in: $in) }", KindMutation, "UpdateVenture"},
		{"subscription OnChange { changed }", KindSubscription, "OnChange"},
		{"{ venture { id } }", KindQuery, ""},
		{"query { venture { id } }", KindQuery, ""},
	}

	for _, tc := range cases {
		op, ok := IdentifyOperation(TemplateLiteral{FilePath: "a.ts", RawText: tc.raw, Segments: []Segment{{Text: tc.raw}}})
		require.True(t, ok, tc.raw)
		assert.Equal(t, tc.kind, op.Kind, tc.raw)
		assert.Equal(t, tc.name, op.Name, tc.raw)
	}
}

func TestIdentifyOperationSkipsFragmentOnlyLiterals(t *testing.T) {
	_, ok := IdentifyOperation(TemplateLiteral{
		FilePath: "a.ts",
		RawText:  "fragment VentureFields on Venture { id name }",
	})
	assert.False(t, ok)
}

func TestIdentifyOperationCollectsSpreads(t *testing.T) {
	raw := "query Q { venture { ...VentureFields ...Extra } }"
	op, ok := IdentifyOperation(TemplateLiteral{FilePath: "a.ts", RawText: raw})
	require.True(t, ok)
	assert.Equal(t, []string{"VentureFields", "Extra"}, op.DependentFragments)
}

func TestIdentifyOperationKeepsLocation(t *testing.T) {
	op, ok := IdentifyOperation(TemplateLiteral{
		FilePath: "a.ts",
		RawText:  "query Q { id }",
		Span:     SourceSpan{Start: 120, End: 134},
		Line:     7,
	})
	require.True(t, ok)
	assert.Equal(t, 7, op.Line)
	assert.Equal(t, SourceSpan{Start: 120, End: 134}, op.Span)
}

func TestOperationIDStability(t *testing.T) {
	a := OperationID("src/a.ts", "Q", "query Q { id }")
	b := OperationID("src/a.ts", "Q", "query Q { id }")
	assert.Equal(t, a, b, "same inputs must yield the same ID")

	assert.NotEqual(t, a, OperationID("src/b.ts", "Q", "query Q { id }"))
	assert.NotEqual(t, a, OperationID("src/a.ts", "Q", "query Q { id name }"))
}

func TestParseDocumentOnMaskedText(t *testing.T) {
	m := Mask([]Segment{
		{Text: "query Q { venture { ..."},
		{Expr: "flag ? 'A' : 'B'"},
		{Text: " } }"},
	})
	doc, err := ParseDocument("a.ts", m)
	require.NoError(t, err)
	require.Len(t, doc.Operations, 1)
	assert.Equal(t, "Q", doc.Operations[0].Name)
}
