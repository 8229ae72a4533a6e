// # internal/schema/analyzer.go
package schema

import (
	"os"
	"regexp"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"gqlshift/internal/core/errors"
)

// Action names what the transformation engine does with a matched field.
// Replace rewrites the selection in place; comment-out wraps it in a review
// marker because no machine-readable replacement exists.
type Action string

const (
	ActionReplace    Action = "replace"
	ActionCommentOut Action = "comment-out"
)

// Rule is one deprecation rewrite instruction derived from the schema.
// The classification is binary on purpose: a rule either carries a concrete
// replacement path or it is vague, and only non-vague rules may ever be
// applied automatically.
type Rule struct {
	TypeName    string
	FieldName   string
	Reason      string
	IsVague     bool
	Replacement string
	Action      Action
}

// Coordinate returns the schema coordinate "Type.field".
func (r Rule) Coordinate() string {
	return r.TypeName + "." + r.FieldName
}

// RuleSet indexes rules by schema coordinate and by bare field name. The
// field-name index serves selections whose parent type cannot be resolved
// (unparseable context, masked interpolations).
type RuleSet struct {
	byCoordinate map[string]Rule
	byField      map[string][]Rule
}

func NewRuleSet() *RuleSet {
	return &RuleSet{
		byCoordinate: make(map[string]Rule),
		byField:      make(map[string][]Rule),
	}
}

func (rs *RuleSet) Add(r Rule) {
	rs.byCoordinate[r.Coordinate()] = r
	rs.byField[r.FieldName] = append(rs.byField[r.FieldName], r)
}

func (rs *RuleSet) Len() int {
	return len(rs.byCoordinate)
}

// ForField resolves a rule for a field selected on a known parent type.
func (rs *RuleSet) ForField(typeName, fieldName string) (Rule, bool) {
	r, ok := rs.byCoordinate[typeName+"."+fieldName]
	return r, ok
}

// ForFieldAnyType resolves by field name alone. It only answers when the
// match is unambiguous across the whole schema; a field deprecated on two
// types with different rules stays unmatched rather than guessed.
func (rs *RuleSet) ForFieldAnyType(fieldName string) (Rule, bool) {
	rules := rs.byField[fieldName]
	if len(rules) == 0 {
		return Rule{}, false
	}
	first := rules[0]
	for _, r := range rules[1:] {
		if r.Replacement != first.Replacement || r.Action != first.Action {
			return Rule{}, false
		}
	}
	return first, true
}

// LoadFile parses a schema document from disk.
func LoadFile(path string) (*ast.Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(
			errors.Wrap(err, errors.CodeValidationError, "read schema file"),
			errors.CtxPath, path)
	}
	s, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: path, Input: string(content)})
	if gqlErr != nil {
		return nil, errors.AddContext(
			errors.Wrap(gqlErr, errors.CodeValidationError, "parse schema"),
			errors.CtxPath, path)
	}
	return s, nil
}

// Analyze walks every object and interface type and emits one Rule per
// deprecated field. Introspection types are skipped.
func Analyze(s *ast.Schema) *RuleSet {
	rs := NewRuleSet()
	for name, def := range s.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}
		for _, field := range def.Fields {
			dir := field.Directives.ForName("deprecated")
			if dir == nil {
				continue
			}
			rs.Add(buildRule(name, field.Name, reasonOf(dir)))
		}
	}
	return rs
}

func reasonOf(dir *ast.Directive) string {
	if arg := dir.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return ""
}

// replacementRe matches the machine-readable reason shapes: "Use `X`",
// "Use X", "use X instead", with an optional dotted path and trailing
// period. Anything else is prose and classifies as vague.
var replacementRe = regexp.MustCompile("^[Uu]se\\s+`?([A-Za-z_][A-Za-z0-9_]*(?:\\.[A-Za-z_][A-Za-z0-9_]*)*)`?(?:\\s+instead)?\\.?\\s*$")

func buildRule(typeName, fieldName, reason string) Rule {
	r := Rule{
		TypeName:  typeName,
		FieldName: fieldName,
		Reason:    reason,
	}
	if m := replacementRe.FindStringSubmatch(strings.TrimSpace(reason)); m != nil {
		r.Replacement = m[1]
		r.Action = ActionReplace
		return r
	}
	r.IsVague = true
	r.Action = ActionCommentOut
	return r
}
