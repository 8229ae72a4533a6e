// # internal/report/report.go
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gqlshift/internal/orchestrator"
	"gqlshift/internal/transform"
)

// Summary renders a run's outcome for the terminal. Counts first, then the
// per-category breakdown, then accumulated problems.
func Summary(w io.Writer, rep *orchestrator.RunReport, duration time.Duration, autoThreshold, semiThreshold int) {
	stats := rep.Analysis.Extraction.Stats

	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Run: %d files, %d operations, %d fragments, %d variants in %v\n",
		stats.FilesScanned, stats.OperationsFound, stats.FragmentsFound, stats.VariantsExpanded, duration)

	if len(rep.Transforms) > 0 {
		byCategory := map[transform.Category]int{}
		for _, res := range rep.Transforms {
			byCategory[transform.Categorize(res.Confidence, autoThreshold, semiThreshold)]++
		}
		fmt.Fprintf(w, "🔧 %d OPERATIONS NEED MIGRATION:\n", len(rep.Transforms))
		fmt.Fprintf(w, "   automatic: %d, semi-automatic: %d, manual: %d\n",
			byCategory[transform.CategoryAutomatic],
			byCategory[transform.CategorySemiAutomatic],
			byCategory[transform.CategoryManual])
	} else {
		fmt.Fprintln(w, "✅ No operations need migration.")
	}

	applied := 0
	for _, fr := range rep.Files {
		applied += fr.EditsApplied
	}
	if applied > 0 {
		fmt.Fprintf(w, "✏️  Applied %d edits across %d files.\n", applied, len(rep.Files))
	}

	if len(rep.Warnings) > 0 {
		fmt.Fprintf(w, "⚠️  %d WARNINGS:\n", len(rep.Warnings))
		for _, warn := range rep.Warnings {
			if warn.FilePath != "" {
				fmt.Fprintf(w, "   [%s] %s (%s)\n", warn.Severity, warn.Message, warn.FilePath)
			} else {
				fmt.Fprintf(w, "   [%s] %s\n", warn.Severity, warn.Message)
			}
		}
	}

	if len(rep.Errors) > 0 {
		fmt.Fprintf(w, "❌ %d ERRORS:\n", len(rep.Errors))
		for _, err := range rep.Errors {
			fmt.Fprintf(w, "   %v\n", err)
		}
	} else {
		fmt.Fprintln(w, "✅ No errors.")
	}
}

// Changes renders the per-operation change detail for review.
func Changes(w io.Writer, results []transform.Result) {
	for _, res := range results {
		fmt.Fprintf(w, "operation %s (confidence %d):\n", res.OperationID, res.Confidence)
		for _, c := range res.Changes {
			fmt.Fprintf(w, "   line %d: %s %s %q -> %q [%s]\n", c.Line, c.Type, c.Path, c.OldValue, c.NewValue, c.Impact)
		}
	}
}
