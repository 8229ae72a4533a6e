package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gqlshift_extraction_seconds",
		Help:    "Time spent extracting operations from a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	OperationsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gqlshift_operations_extracted_total",
		Help: "Total number of operations extracted from source files.",
	})

	VariantsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gqlshift_variants_generated_total",
		Help: "Total number of query variants expanded from conditional templates.",
	})

	FragmentsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gqlshift_fragments_registered",
		Help: "Number of named fragments in the current registry.",
	})

	TransformConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gqlshift_transform_confidence",
		Help:    "Confidence score distribution for computed transformations.",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	TransformChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlshift_transform_changes_total",
		Help: "Total number of transformation changes, by impact.",
	}, []string{"impact"})

	ApplyEditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gqlshift_apply_edits_total",
		Help: "Total number of source edits applied.",
	})

	ApplyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gqlshift_apply_failures_total",
		Help: "Total number of rejected file change sets during apply.",
	})

	RolloutPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gqlshift_rollout_percentage",
		Help: "Current rollout percentage per operation.",
	}, []string{"operation"})

	HealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlshift_health_checks_total",
		Help: "Total health check evaluations, by resulting status.",
	}, []string{"status"})

	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gqlshift_rollbacks_total",
		Help: "Total number of rollback executions.",
	})
)
