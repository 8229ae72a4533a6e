// # internal/transform/confidence.go
package transform

import "gqlshift/internal/extract"

// Penalty weights per change severity. The score starts at 100 and only ever
// goes down, so adding changes or warnings can never raise confidence.
const (
	penaltyBreaking      = 25
	penaltyHighWarning   = 10
	penaltyMediumWarning = 5
)

// Score computes the 0-100 confidence for a change set.
func Score(changes []Change, warnings []extract.Warning) int {
	score := 100
	for _, c := range changes {
		if c.Impact == ImpactBreaking {
			score -= penaltyBreaking
		}
	}
	for _, w := range warnings {
		switch w.Severity {
		case extract.SeverityHigh:
			score -= penaltyHighWarning
		case extract.SeverityMedium:
			score -= penaltyMediumWarning
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// Category is the confidence gate deciding how a transformation may proceed.
type Category string

const (
	CategoryAutomatic     Category = "automatic"
	CategorySemiAutomatic Category = "semiAutomatic"
	CategoryManual        Category = "manual"
)

// Categorize compares a score against the configured thresholds. The
// thresholds are the single decision point; nothing else in the pipeline
// compares raw scores.
func Categorize(score, automatic, semiAutomatic int) Category {
	switch {
	case score >= automatic:
		return CategoryAutomatic
	case score >= semiAutomatic:
		return CategorySemiAutomatic
	default:
		return CategoryManual
	}
}
