// # internal/variants/generate.go
package variants

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"gqlshift/internal/core/errors"
	"gqlshift/internal/extract"
	"gqlshift/internal/fragments"
)

// Variant is one concrete point in the cross-product of switch assignments,
// with fragments inlined. Variants live for one extraction pass only.
type Variant struct {
	ID                  string
	OriginalOperationID string
	Conditions          map[string]string
	FullyResolvedText   string
}

// variantNamespace seeds deterministic variant IDs: re-running extraction on
// unchanged input must yield identical IDs.
var variantNamespace = uuid.MustParse("5c1f3a9e-8a4e-4c2a-9d7b-2f6e0d1b8c33")

func VariantID(operationID string, conditions map[string]string) string {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(operationID)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(conditions[k])
	}
	return uuid.NewSHA1(variantNamespace, []byte(b.String())).String()
}

// Generate expands the full cross-product of switch assignments for one
// operation. Zero switches yields no variants: the operation is then
// extracted normally, not as a degenerate single variant.
func Generate(op extract.Operation, det Detection, inliner *fragments.Inliner, maxVariants int) ([]Variant, error) {
	if det.Empty() {
		return nil, nil
	}

	total := 1
	for _, sw := range det.Switches {
		total *= len(sw.PossibleValues)
		if maxVariants > 0 && total > maxVariants {
			return nil, errors.Newf(errors.CodeValidationError,
				"operation %s expands to more than %d variants (%d switches); raise max_variants or split the template",
				op.Name, maxVariants, len(det.Switches))
		}
	}

	// Switches sorted by variable name make assignment order, and therefore
	// output order, a stable function of the template.
	switches := append([]Switch(nil), det.Switches...)
	sort.Slice(switches, func(i, j int) bool {
		return switches[i].VariableName < switches[j].VariableName
	})

	assignments := crossProduct(switches)
	out := make([]Variant, 0, len(assignments))
	for _, conditions := range assignments {
		text := resolveSegments(op.Segments, det, conditions)
		inlined := inliner.Inline(text)
		out = append(out, Variant{
			ID:                  VariantID(op.ID, conditions),
			OriginalOperationID: op.ID,
			Conditions:          conditions,
			FullyResolvedText:   inlined.Text,
		})
	}
	return out, nil
}

func crossProduct(switches []Switch) []map[string]string {
	assignments := []map[string]string{{}}
	for _, sw := range switches {
		next := make([]map[string]string, 0, len(assignments)*len(sw.PossibleValues))
		for _, base := range assignments {
			for _, value := range sw.PossibleValues {
				conditions := make(map[string]string, len(base)+1)
				for k, v := range base {
					conditions[k] = v
				}
				conditions[sw.VariableName] = value
				next = append(next, conditions)
			}
		}
		assignments = next
	}
	return assignments
}

// resolveSegments substitutes the chosen branch text at every occurrence
// keyed to each assigned variable; placeholders that are not switches stay
// opaque `${expr}` text.
func resolveSegments(segments []extract.Segment, det Detection, conditions map[string]string) string {
	branchBySegment := make(map[int]string)
	for variable, value := range conditions {
		for _, occ := range det.occurrences[variable] {
			branch, ok := occ.branches[value]
			if !ok {
				// Occurrences comparing the same variable against another
				// literal fall through to their own catch-all branch.
				branch = occ.branches[enumDefault]
			}
			branchBySegment[occ.segIndex] = branch
		}
	}

	var b strings.Builder
	for i, seg := range segments {
		if !seg.IsPlaceholder() {
			b.WriteString(seg.Text)
			continue
		}
		if branch, ok := branchBySegment[i]; ok {
			b.WriteString(branch)
			continue
		}
		b.WriteString("${")
		b.WriteString(seg.Expr)
		b.WriteString("}")
	}
	return b.String()
}
