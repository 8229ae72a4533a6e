// # internal/variants/switches.go
package variants

import (
	"regexp"

	"gqlshift/internal/extract"
)

type SwitchKind string

const (
	KindBoolean SwitchKind = "boolean"
	KindEnum    SwitchKind = "enum"
)

// Switch is one detected point of conditional selection inside a template:
// a single free variable, evaluated elsewhere at runtime, choosing between
// statically known branch texts.
type Switch struct {
	VariableName   string
	Kind           SwitchKind
	PossibleValues []string
}

// occurrence binds one placeholder segment to the branch text per value of
// its switch variable.
type occurrence struct {
	segIndex int
	branches map[string]string
}

// Detection is the full set of switches found in one operation template.
// Every switch must be enumerated: variant generation is the cross-product
// of all of them, never a sample.
type Detection struct {
	Switches    []Switch
	occurrences map[string][]occurrence
}

func (d Detection) Empty() bool {
	return len(d.Switches) == 0
}

// enumDefault is the catch-all value for the false branch of an equality
// switch: any runtime value other than the compared literal selects it.
const enumDefault = "default"

// quotedStr matches one string literal with matching delimiters. RE2 has no
// backreferences, so the "closing quote equals opening quote" rule is spelled
// out as an alternation; the content lands in exactly one of three groups.
const quotedStr = `(?:'((?:[^'"` + "`" + `])*)'|"((?:[^'"` + "`" + `])*)"|` + "`" + `((?:[^'"` + "`" + `])*)` + "`" + `)`

var (
	// flag ? 'FragA' : 'FragB'
	boolTernaryRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*\?\s*` + quotedStr + `\s*:\s*` + quotedStr + `\s*$`)
	// kind === 'plan' ? 'FragA' : 'FragB'
	enumTernaryRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*===\s*(?:'([^'"]*)'|"([^'"]*)")\s*\?\s*` + quotedStr + `\s*:\s*` + quotedStr + `\s*$`)
)

// Detect scans an operation's placeholder expressions for conditional
// patterns. Expressions that match neither pattern stay opaque placeholders
// and take no part in variant generation.
func Detect(segments []extract.Segment) Detection {
	det := Detection{occurrences: make(map[string][]occurrence)}
	seen := make(map[string]bool)

	for i, seg := range segments {
		if !seg.IsPlaceholder() {
			continue
		}

		if m := enumTernaryRe.FindStringSubmatch(seg.Expr); m != nil {
			variable, literal := m[1], m[2]+m[3]
			whenMatch, whenOther := m[4]+m[5]+m[6], m[7]+m[8]+m[9]
			if !seen[variable] {
				seen[variable] = true
				det.Switches = append(det.Switches, Switch{
					VariableName:   variable,
					Kind:           KindEnum,
					PossibleValues: []string{literal, enumDefault},
				})
			}
			det.occurrences[variable] = append(det.occurrences[variable], occurrence{
				segIndex: i,
				branches: map[string]string{literal: whenMatch, enumDefault: whenOther},
			})
			continue
		}

		if m := boolTernaryRe.FindStringSubmatch(seg.Expr); m != nil {
			variable, whenTrue, whenFalse := m[1], m[2]+m[3]+m[4], m[5]+m[6]+m[7]
			if !seen[variable] {
				seen[variable] = true
				det.Switches = append(det.Switches, Switch{
					VariableName:   variable,
					Kind:           KindBoolean,
					PossibleValues: []string{"true", "false"},
				})
			}
			det.occurrences[variable] = append(det.occurrences[variable], occurrence{
				segIndex: i,
				branches: map[string]string{"true": whenTrue, "false": whenFalse},
			})
		}
	}
	return det
}
