// # internal/extract/operation.go
package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"gqlshift/internal/fragments"
)

// operationNamespace seeds operation IDs. An ID is a stable function of the
// file path, operation name and literal content, so re-extraction of an
// unchanged literal yields the same identity even if its byte offset moved.
var operationNamespace = uuid.MustParse("9b2d4f70-1c5a-4b8e-8f3d-6a0e7c5d2b11")

func OperationID(filePath, name, rawText string) string {
	return uuid.NewSHA1(operationNamespace, []byte(filePath+"\x00"+name+"\x00"+rawText)).String()
}

// IdentifyOperation classifies a literal. Literals that only declare
// fragments are registry entries, not operations, and return false.
func IdentifyOperation(lit TemplateLiteral) (Operation, bool) {
	kind, name := classify(lit.RawText)
	if kind == "" {
		return Operation{}, false
	}

	op := Operation{
		ID:                 OperationID(lit.FilePath, name, lit.RawText),
		Name:               name,
		Kind:               kind,
		RawText:            lit.RawText,
		FilePath:           lit.FilePath,
		Span:               lit.Span,
		Line:               lit.Line,
		Segments:           lit.Segments,
		DependentFragments: fragments.SpreadNames(lit.RawText),
	}
	return op, true
}

var operationKeywordRe = regexp.MustCompile(`(?m)^\s*(query|mutation|subscription)\b(?:\s+([A-Za-z_][A-Za-z0-9_]*))?`)

func classify(raw string) (OperationKind, string) {
	trimmed := strings.TrimSpace(raw)
	if m := operationKeywordRe.FindStringSubmatch(raw); m != nil {
		return OperationKind(m[1]), m[2]
	}
	if strings.HasPrefix(trimmed, "{") {
		// Anonymous shorthand query.
		return KindQuery, ""
	}
	return "", ""
}

// ParseDocument parses the masked form of a literal. A failure here is a
// warning for the caller: the literal may hold partial query text assembled
// at runtime, which stays opaque.
func ParseDocument(path string, masked MaskedText) (*ast.QueryDocument, error) {
	return parser.ParseQuery(&ast.Source{Name: path, Input: masked.Text})
}
