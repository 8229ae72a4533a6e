// # internal/rollout/rollout.go
package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gqlshift/internal/config"
	"gqlshift/internal/core/errors"
	"gqlshift/internal/shared/observability"
	"gqlshift/internal/transform"
)

// State is the per-operation position in the safety machine. Only automatic
// confidence ever reaches rollingOut; pendingReview and manual are terminal
// for this system and handled by humans.
type State string

const (
	StateProposed      State = "proposed"
	StatePendingReview State = "pendingReview"
	StateManual        State = "manual"
	StateRollingOut    State = "rollingOut"
	StateCompleted     State = "completed"
	StateRolledBack    State = "rolledBack"
)

type Strategy string

const (
	StrategyImmediate Strategy = "immediate"
	StrategyGradual   Strategy = "gradual"
)

// RollbackPlan must exist before an operation's rollout may start.
type RollbackPlan struct {
	ID             string
	OperationID    string
	Strategy       Strategy
	StepPercentage int
	CreatedAt      time.Time
}

// FallbackBehavior names what traffic outside the rollout percentage gets.
type FallbackBehavior string

// FallbackOriginal serves the unmigrated operation to traffic outside the
// percentage and to everyone after a rollback.
const FallbackOriginal FallbackBehavior = "original"

// FeatureFlag gates what share of traffic sees the rewritten operation.
type FeatureFlag struct {
	OperationID       string
	Enabled           bool
	RolloutPercentage int
	FallbackBehavior  FallbackBehavior
}

// Signals are externally measured health inputs. This system evaluates them
// against thresholds; it never computes them.
type Signals struct {
	ErrorRate float64
	Latency   time.Duration
	Reported  time.Time
}

// Issue is one threshold violation found during a health evaluation.
type Issue struct {
	Severity string
	Message  string
	Reported time.Time
}

type Health struct {
	OperationID string
	Healthy     bool
	Issues      []Issue
}

type entry struct {
	state   State
	flag    FeatureFlag
	plan    *RollbackPlan
	signals *Signals
}

// Manager owns flags, plans and states for every admitted operation. All
// mutation goes through one mutex; the ticker loop and the request path
// share it.
type Manager struct {
	cfg config.Rollout

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(cfg config.Rollout) *Manager {
	return &Manager{cfg: cfg, entries: make(map[string]*entry)}
}

// Admit places an operation into the machine according to its confidence
// category and initializes its flag at zero, disabled.
func (m *Manager) Admit(operationID string, category transform.Category) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[operationID]
	if e == nil {
		e = &entry{flag: FeatureFlag{OperationID: operationID, FallbackBehavior: FallbackOriginal}}
		m.entries[operationID] = e
	}

	switch category {
	case transform.CategoryAutomatic:
		e.state = StateProposed
	case transform.CategorySemiAutomatic:
		e.state = StatePendingReview
	default:
		e.state = StateManual
	}
	return e.state
}

func (m *Manager) State(operationID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return "", false
	}
	return e.state, true
}

func (m *Manager) Flag(operationID string) (FeatureFlag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return FeatureFlag{}, false
	}
	return e.flag, true
}

// CreateRollbackPlan registers the mandatory plan. Creating a second plan
// for the same operation replaces the first.
func (m *Manager) CreateRollbackPlan(operationID string, strategy Strategy) (RollbackPlan, error) {
	if strategy != StrategyImmediate && strategy != StrategyGradual {
		return RollbackPlan{}, errors.Newf(errors.CodeRolloutError, "unknown rollback strategy %q", strategy)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return RollbackPlan{}, errors.AddContext(
			errors.New(errors.CodeRolloutError, "operation was never admitted"),
			errors.CtxOperation, operationID)
	}

	plan := RollbackPlan{
		ID:             uuid.NewString(),
		OperationID:    operationID,
		Strategy:       strategy,
		StepPercentage: m.cfg.StepPercentage,
		CreatedAt:      time.Now(),
	}
	e.plan = &plan
	return plan, nil
}

func (m *Manager) Plan(operationID string) (RollbackPlan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil || e.plan == nil {
		return RollbackPlan{}, false
	}
	return *e.plan, true
}

// StartRollout begins serving the rewritten operation at the given
// percentage. Requires automatic confidence and an existing rollback plan.
func (m *Manager) StartRollout(operationID string, percentage int) error {
	if percentage < 1 || percentage > 100 {
		return errors.Newf(errors.CodeRolloutError, "initial percentage %d out of range [1,100]", percentage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return errors.AddContext(
			errors.New(errors.CodeRolloutError, "operation was never admitted"),
			errors.CtxOperation, operationID)
	}
	switch e.state {
	case StateProposed:
	case StateRollingOut:
		// Already in flight; starting again is a no-op.
		return nil
	default:
		return errors.AddContext(errors.Newf(errors.CodeRolloutError,
			"cannot start rollout from state %q; only automatic-confidence proposals roll out", e.state),
			errors.CtxOperation, operationID)
	}
	if e.plan == nil {
		return errors.AddContext(errors.New(errors.CodeRolloutError,
			"no rollback plan exists; create one before rolling out"),
			errors.CtxOperation, operationID)
	}

	e.state = StateRollingOut
	e.flag.Enabled = true
	e.flag.RolloutPercentage = percentage
	observability.RolloutPercentage.WithLabelValues(operationID).Set(float64(percentage))
	slog.Info("rollout started", "operation", operationID, "percentage", percentage)
	return nil
}

// Increment raises the percentage by step, capped at 100. Percentage never
// decreases here; only rollback lowers it.
func (m *Manager) Increment(operationID string, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil || e.state != StateRollingOut {
		return errors.AddContext(
			errors.New(errors.CodeRolloutError, "operation is not rolling out"),
			errors.CtxOperation, operationID)
	}
	m.incrementLocked(operationID, e, step)
	return nil
}

func (m *Manager) incrementLocked(operationID string, e *entry, step int) {
	e.flag.RolloutPercentage += step
	if e.flag.RolloutPercentage >= 100 {
		e.flag.RolloutPercentage = 100
		e.state = StateCompleted
		slog.Info("rollout completed", "operation", operationID)
	}
	observability.RolloutPercentage.WithLabelValues(operationID).Set(float64(e.flag.RolloutPercentage))
}

// ReportSignals stores externally measured health inputs for an operation.
func (m *Manager) ReportSignals(operationID string, s Signals) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return
	}
	if s.Reported.IsZero() {
		s.Reported = time.Now()
	}
	e.signals = &s
}

// CheckHealth evaluates one operation against the configured thresholds.
// It only reports; rolling back on unhealthy is the orchestrator's call.
func (m *Manager) CheckHealth(operationID string) (Health, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return Health{}, errors.AddContext(
			errors.New(errors.CodeHealthCheckError, "operation was never admitted"),
			errors.CtxOperation, operationID)
	}
	return m.evaluateLocked(operationID, e), nil
}

// CheckAll evaluates every in-flight operation.
func (m *Manager) CheckAll() []Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Health
	for id, e := range m.entries {
		if e.state != StateRollingOut {
			continue
		}
		out = append(out, m.evaluateLocked(id, e))
	}
	return out
}

func (m *Manager) evaluateLocked(operationID string, e *entry) Health {
	h := Health{OperationID: operationID, Healthy: true}
	if e.signals == nil {
		// No signals yet reads as healthy; thresholds only trip on data.
		observability.HealthChecksTotal.WithLabelValues("healthy").Inc()
		return h
	}
	if e.signals.ErrorRate > m.cfg.MaxErrorRate {
		h.Issues = append(h.Issues, Issue{
			Severity: "high",
			Message:  fmt.Sprintf("error rate %.4f exceeds threshold %.4f", e.signals.ErrorRate, m.cfg.MaxErrorRate),
			Reported: e.signals.Reported,
		})
	}
	if e.signals.Latency > m.cfg.MaxLatency {
		h.Issues = append(h.Issues, Issue{
			Severity: "medium",
			Message:  fmt.Sprintf("latency %s exceeds threshold %s", e.signals.Latency, m.cfg.MaxLatency),
			Reported: e.signals.Reported,
		})
	}
	h.Healthy = len(h.Issues) == 0
	if h.Healthy {
		observability.HealthChecksTotal.WithLabelValues("healthy").Inc()
	} else {
		observability.HealthChecksTotal.WithLabelValues("unhealthy").Inc()
	}
	return h
}

// Rollback reverts an operation. Immediate plans cut over at once; gradual
// plans mark the state and let the ticker step the percentage down. Rolling
// back an already-rolled-back operation is a no-op success.
func (m *Manager) Rollback(operationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[operationID]
	if e == nil {
		return errors.AddContext(
			errors.New(errors.CodeRolloutError, "operation was never admitted"),
			errors.CtxOperation, operationID)
	}
	if e.state == StateRolledBack {
		return nil
	}
	if e.state != StateRollingOut && e.state != StateCompleted {
		// Nothing is live; treat as the same no-op.
		return nil
	}
	if e.plan == nil {
		return errors.AddContext(errors.New(errors.CodeRolloutError,
			"operation is live without a rollback plan"),
			errors.CtxOperation, operationID)
	}

	e.state = StateRolledBack
	if e.plan.Strategy == StrategyImmediate {
		e.flag.Enabled = false
		e.flag.RolloutPercentage = 0
		observability.RolloutPercentage.WithLabelValues(operationID).Set(0)
	}
	observability.RollbacksTotal.Inc()
	slog.Info("rollback initiated", "operation", operationID, "strategy", e.plan.Strategy)
	return nil
}

// Run drives percentage progression on the configured interval until the
// context is cancelled. Cancellation stops future increments; percentages
// already applied stay where they are.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.StepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("rollout loop stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step advances one tick: healthy in-flight operations gain StepPercentage,
// unhealthy ones hold (the orchestrator decides on rollback), and gradual
// rollbacks step down toward zero.
func (m *Manager) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		switch e.state {
		case StateRollingOut:
			h := m.evaluateLocked(id, e)
			if !h.Healthy {
				slog.Warn("holding rollout", "operation", id, "issues", h.Issues)
				continue
			}
			m.incrementLocked(id, e, m.cfg.StepPercentage)
		case StateRolledBack:
			if !e.flag.Enabled || e.flag.RolloutPercentage == 0 {
				continue
			}
			e.flag.RolloutPercentage -= e.plan.StepPercentage
			if e.flag.RolloutPercentage <= 0 {
				e.flag.RolloutPercentage = 0
				e.flag.Enabled = false
			}
			observability.RolloutPercentage.WithLabelValues(id).Set(float64(e.flag.RolloutPercentage))
		}
	}
}
