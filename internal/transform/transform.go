// # internal/transform/transform.go
package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"gqlshift/internal/core/errors"
	"gqlshift/internal/extract"
	"gqlshift/internal/schema"
	"gqlshift/internal/shared/observability"
)

type Impact string

const (
	ImpactBreaking   Impact = "BREAKING"
	ImpactCompatible Impact = "COMPATIBLE"
)

type ChangeType string

const (
	ChangeField      ChangeType = "field"
	ChangeCommentOut ChangeType = "comment-out"
)

// Change records one rewrite inside an operation, in traversal order. Path is
// the schema coordinate of the deprecated field; Reason carries the
// deprecation reason that produced the rewrite.
type Change struct {
	Type     ChangeType
	Path     string
	OldValue string
	NewValue string
	Reason   string
	Impact   Impact
	Line     int
}

// Result is the outcome of transforming one operation. Transformed equal to
// Original means the operation is a no-op and carries zero changes.
type Result struct {
	OperationID string
	Original    string
	Transformed string
	Changes     []Change
	Warnings    []extract.Warning
	Confidence  int
}

func (r Result) IsNoop() bool {
	return r.Transformed == r.Original
}

// Transformer applies a deprecation rule set to extracted operations. The
// schema resolves parent types during traversal so that rules only fire on
// the type they were declared for.
type Transformer struct {
	rules  *schema.RuleSet
	schema *ast.Schema
}

func New(rules *schema.RuleSet, s *ast.Schema) *Transformer {
	return &Transformer{rules: rules, schema: s}
}

// edit is a position-targeted splice on the masked text. Edits never overlap;
// applying them from the highest offset down keeps earlier offsets valid.
type edit struct {
	start, end  int
	replacement string
}

type walkState struct {
	masked extract.MaskedText
	edits  []edit
	result *Result
}

// Transform rewrites one operation against the rule set. Interpolated
// expressions stay masked during the walk and are restored verbatim, so the
// output differs from the input only at rewritten fields.
func (t *Transformer) Transform(op extract.Operation) (Result, error) {
	res := Result{OperationID: op.ID, Original: op.RawText}

	masked := extract.Mask(op.Segments)
	doc := op.Document
	if doc == nil {
		var err error
		doc, err = extract.ParseDocument(op.FilePath, masked)
		if err != nil {
			return res, errors.AddContext(
				errors.Wrap(err, errors.CodeTransformError, "operation does not parse"),
				errors.CtxOperation, op.Name)
		}
	}

	st := &walkState{masked: masked, result: &res}
	for _, opDef := range doc.Operations {
		t.walkSelections(st, opDef.SelectionSet, t.rootType(opDef.Operation))
	}
	for _, frag := range doc.Fragments {
		t.walkSelections(st, frag.SelectionSet, frag.TypeCondition)
	}

	res.Transformed = masked.Restore(applyEdits(masked.Text, st.edits))
	if res.IsNoop() {
		// No-op invariant: unchanged text carries no change records.
		res.Changes = nil
	}
	res.Confidence = Score(res.Changes, res.Warnings)

	observability.TransformConfidence.Observe(float64(res.Confidence))
	for _, c := range res.Changes {
		observability.TransformChangesTotal.WithLabelValues(string(c.Impact)).Inc()
	}
	return res, nil
}

func (t *Transformer) rootType(kind ast.Operation) string {
	if t.schema == nil {
		return ""
	}
	var def *ast.Definition
	switch kind {
	case ast.Mutation:
		def = t.schema.Mutation
	case ast.Subscription:
		def = t.schema.Subscription
	default:
		def = t.schema.Query
	}
	if def == nil {
		return ""
	}
	return def.Name
}

func (t *Transformer) walkSelections(st *walkState, set ast.SelectionSet, parentType string) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			t.visitField(st, s, parentType)
		case *ast.InlineFragment:
			next := parentType
			if s.TypeCondition != "" {
				next = s.TypeCondition
			}
			t.walkSelections(st, s.SelectionSet, next)
		case *ast.FragmentSpread:
			// Spread bodies are rewritten where the fragment is defined.
		}
	}
}

func (t *Transformer) visitField(st *walkState, field *ast.Field, parentType string) {
	if !strings.HasPrefix(field.Name, "__ph") {
		if rule, ok := t.lookupRule(parentType, field.Name); ok {
			t.applyRule(st, field, rule)
		}
	}
	t.walkSelections(st, field.SelectionSet, t.fieldTypeName(parentType, field.Name))
}

func (t *Transformer) lookupRule(parentType, fieldName string) (schema.Rule, bool) {
	if parentType != "" {
		return t.rules.ForField(parentType, fieldName)
	}
	return t.rules.ForFieldAnyType(fieldName)
}

// fieldTypeName resolves the named type a field selects into, or "" when the
// parent type is unknown to the schema.
func (t *Transformer) fieldTypeName(parentType, fieldName string) string {
	if t.schema == nil || parentType == "" {
		return ""
	}
	def := t.schema.Types[parentType]
	if def == nil {
		return ""
	}
	fd := def.Fields.ForName(fieldName)
	if fd == nil {
		return ""
	}
	return fd.Type.Name()
}

func (t *Transformer) applyRule(st *walkState, field *ast.Field, rule schema.Rule) {
	pos := field.Position
	if pos == nil {
		st.warn(extract.SeverityHigh, fmt.Sprintf(
			"field %q matches deprecation rule but carries no source position; left unchanged", field.Name))
		return
	}
	start := pos.Start
	end := start + len(field.Name)
	if end > len(st.masked.Text) || st.masked.Text[start:end] != field.Name {
		// Aliased fields position at the alias token; anything else here
		// means the parser offsets drifted from the text.
		st.warn(extract.SeverityHigh, fmt.Sprintf(
			"field %q matches deprecation rule but its source span could not be pinned; left unchanged", field.Name))
		return
	}

	switch rule.Action {
	case schema.ActionReplace:
		t.applyReplace(st, field, rule, start, end)
	case schema.ActionCommentOut:
		t.applyCommentOut(st, field, rule, start, end)
	}
}

func (t *Transformer) applyReplace(st *walkState, field *ast.Field, rule schema.Rule, start, end int) {
	path := strings.Split(rule.Replacement, ".")

	if len(path) == 1 {
		// In-place rename keeps arguments and sub-selections intact.
		st.push(edit{start, end, rule.Replacement}, Change{
			Type:     ChangeField,
			Path:     rule.Coordinate(),
			OldValue: field.Name,
			NewValue: rule.Replacement,
			Reason:   rule.Reason,
			Impact:   ImpactCompatible,
			Line:     field.Position.Line,
		})
		return
	}

	// A dotted replacement expands into a nested selection. That is only
	// safe for a plain leaf field; arguments or an existing sub-selection
	// would need hand restructuring.
	if len(field.Arguments) > 0 || len(field.SelectionSet) > 0 || field.Alias != field.Name {
		st.warn(extract.SeverityHigh, fmt.Sprintf(
			"field %q needs nested replacement %q but has arguments, an alias or a sub-selection; review by hand", field.Name, rule.Replacement))
		return
	}

	st.push(edit{start, end, nestedSelection(path)}, Change{
		Type:     ChangeField,
		Path:     rule.Coordinate(),
		OldValue: field.Name,
		NewValue: rule.Replacement,
		Reason:   rule.Reason,
		Impact:   ImpactCompatible,
		Line:     field.Position.Line,
	})
}

func (t *Transformer) applyCommentOut(st *walkState, field *ast.Field, rule schema.Rule, start, end int) {
	// Commenting out with a line comment is only sound when the field is
	// alone on its line; otherwise the trailing text would be swallowed.
	if len(field.Arguments) > 0 || len(field.SelectionSet) > 0 || !aloneOnLine(st.masked.Text, start, end) {
		st.warn(extract.SeverityHigh, fmt.Sprintf(
			"deprecated field %q (%s) cannot be commented out mechanically; remove it by hand", field.Name, rule.Reason))
		return
	}

	marker := fmt.Sprintf("# deprecated(%s): %s", rule.Reason, field.Name)
	st.push(edit{start, end, marker}, Change{
		Type:     ChangeCommentOut,
		Path:     rule.Coordinate(),
		OldValue: field.Name,
		NewValue: marker,
		Reason:   rule.Reason,
		Impact:   ImpactBreaking,
		Line:     field.Position.Line,
	})
}

func (st *walkState) push(e edit, c Change) {
	st.edits = append(st.edits, e)
	st.result.Changes = append(st.result.Changes, c)
}

func (st *walkState) warn(sev extract.WarningSeverity, msg string) {
	st.result.Warnings = append(st.result.Warnings, extract.Warning{Severity: sev, Message: msg})
}

// nestedSelection renders a dotted path as a nested field selection:
// profile.logoUrl becomes "profile { logoUrl }".
func nestedSelection(path []string) string {
	out := path[len(path)-1]
	for i := len(path) - 2; i >= 0; i-- {
		out = path[i] + " { " + out + " }"
	}
	return out
}

func aloneOnLine(text string, start, end int) bool {
	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	lineEnd := end + strings.IndexByte(text[end:]+"\n", '\n')
	return strings.TrimSpace(text[lineStart:start]) == "" &&
		strings.TrimSpace(text[end:lineEnd]) == ""
}

// applyEdits splices edits into text from the highest offset down so earlier
// offsets stay valid while later ones are rewritten.
func applyEdits(text string, edits []edit) string {
	sorted := make([]edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	for _, e := range sorted {
		text = text[:e.start] + e.replacement + text[e.end:]
	}
	return text
}
