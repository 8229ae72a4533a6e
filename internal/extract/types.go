// # internal/extract/types.go
package extract

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// SourceSpan is the byte range of a template literal's content inside its
// file, exclusive of the surrounding backticks.
type SourceSpan struct {
	Start int
	End   int
}

func (s SourceSpan) Len() int {
	return s.End - s.Start
}

// Segment is one piece of a template literal: either plain text or an
// interpolated expression. Expressions are never evaluated; Expr carries the
// source text verbatim.
type Segment struct {
	Text string
	Expr string
}

func (s Segment) IsPlaceholder() bool {
	return s.Expr != ""
}

// TemplateLiteral is one marker-tagged literal found in a source file.
type TemplateLiteral struct {
	FilePath string
	Tag      string
	Span     SourceSpan
	Segments []Segment
	RawText  string
	Line     int
}

type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
	KindFragment     OperationKind = "fragment"
)

// Operation is one extracted query/mutation/subscription document. It is
// immutable after extraction; transformation produces new values.
type Operation struct {
	ID                 string
	Name               string
	Kind               OperationKind
	RawText            string
	InlinedText        string
	FilePath           string
	Span               SourceSpan
	Line               int
	Segments           []Segment
	DependentFragments []string

	// Document is the parsed form of the masked raw text. Nil when the
	// literal does not parse as GraphQL, which is a warning, not an error.
	Document *ast.QueryDocument
}

type WarningSeverity string

const (
	SeverityHigh   WarningSeverity = "high"
	SeverityMedium WarningSeverity = "medium"
	SeverityLow    WarningSeverity = "low"
)

type Warning struct {
	Severity WarningSeverity
	Message  string
	FilePath string
}

type Stats struct {
	FilesScanned     int
	FilesFailed      int
	OperationsFound  int
	FragmentsFound   int
	VariantsExpanded int
}
