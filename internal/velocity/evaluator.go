// Package velocity implements sliding-window transaction velocity checks,
// structuring and round-amount detection, and geographic risk grading.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
)

// WindowViolation describes a failed window check: which window, which
// dimension, and by how much the limit was exceeded.
type WindowViolation struct {
	Window    time.Duration   `json:"window"`
	Dimension string          `json:"dimension"` // "count" or "amount"
	Limit     decimal.Decimal `json:"limit"`
	Observed  decimal.Decimal `json:"observed"`
	Margin    decimal.Decimal `json:"margin"`
}

// Result aggregates every velocity and threshold signal for one transaction.
type Result struct {
	Violations  []WindowViolation   `json:"violations"`
	Structuring bool                `json:"structuring"`
	RoundAmount bool                `json:"round_amount"`
	CTRRequired bool                `json:"ctr_required"`
	GeoScore    float64             `json:"geo_score"`
	Triggers    []model.TriggerType `json:"triggers"`
	Degraded    bool                `json:"degraded"`
}

// Violated reports whether any window limit was exceeded.
func (r *Result) Violated() bool { return len(r.Violations) > 0 }

// Evaluator runs velocity, structuring, round-amount and geography checks
// against a shared counter store.
type Evaluator struct {
	store  CounterStore
	cfg    config.VelocityConfig
	logger *zap.SugaredLogger
}

// NewEvaluator creates a velocity evaluator.
func NewEvaluator(store CounterStore, cfg config.VelocityConfig, logger *zap.SugaredLogger) *Evaluator {
	return &Evaluator{store: store, cfg: cfg, logger: logger}
}

// Evaluate records the transaction in every configured window and returns
// the violated checks. Store failures degrade the result instead of passing
// it: velocity is a risk-bearing check and fails closed.
func (e *Evaluator) Evaluate(ctx context.Context, tx *model.TransactionRecord) (*Result, error) {
	result := &Result{}

	for _, limit := range e.cfg.Windows {
		totals, err := e.store.Record(ctx, tx.ActorID, limit.Window, tx.Amount)
		if err != nil {
			e.logger.Errorw("Velocity counter store unavailable, marking result degraded",
				"actor_id", tx.ActorID,
				"window", limit.Window,
				"error", err,
			)
			result.Degraded = true
			result.Triggers = append(result.Triggers, model.TriggerServiceDegraded)
			return result, nil
		}

		if limit.MaxCount > 0 && totals.Count >= limit.MaxCount {
			result.Violations = append(result.Violations, WindowViolation{
				Window:    limit.Window,
				Dimension: "count",
				Limit:     decimal.NewFromInt(limit.MaxCount),
				Observed:  decimal.NewFromInt(totals.Count),
				Margin:    decimal.NewFromInt(totals.Count - limit.MaxCount),
			})
		}

		maxAmount := decimal.NewFromFloat(limit.MaxAmount)
		if limit.MaxAmount > 0 && totals.Amount.GreaterThanOrEqual(maxAmount) {
			result.Violations = append(result.Violations, WindowViolation{
				Window:    limit.Window,
				Dimension: "amount",
				Limit:     maxAmount,
				Observed:  totals.Amount,
				Margin:    totals.Amount.Sub(maxAmount),
			})
		}
	}

	if result.Violated() {
		result.Triggers = append(result.Triggers, model.TriggerVelocityExceeded)
	}

	e.checkThresholds(ctx, tx, result)
	e.checkGeography(tx, result)

	return result, nil
}

// checkThresholds runs the CTR, structuring and round-amount rules.
func (e *Evaluator) checkThresholds(ctx context.Context, tx *model.TransactionRecord, result *Result) {
	reporting := decimal.NewFromFloat(e.cfg.ReportingThreshold)
	floor := decimal.NewFromFloat(e.cfg.StructuringFloor)

	if tx.Amount.GreaterThanOrEqual(reporting) {
		result.CTRRequired = true
		result.Triggers = append(result.Triggers, model.TriggerCTRRequired)
	}

	// Structuring band: at or above the floor, strictly below the reporting
	// threshold. The flag only raises once the same-day count reaches the
	// configured minimum.
	if tx.Amount.GreaterThanOrEqual(floor) && tx.Amount.LessThan(reporting) {
		count, err := e.store.RecordStructuring(ctx, tx.ActorID, tx.Timestamp.UTC())
		if err != nil {
			e.logger.Errorw("Structuring counter unavailable, marking result degraded",
				"actor_id", tx.ActorID,
				"error", err,
			)
			result.Degraded = true
			result.Triggers = append(result.Triggers, model.TriggerServiceDegraded)
		} else if count >= e.cfg.StructuringMinCount {
			result.Structuring = true
			result.Triggers = append(result.Triggers, model.TriggerStructuring)
			e.logger.Warnw("Structuring pattern detected",
				"actor_id", tx.ActorID,
				"same_day_count", count,
				"amount", tx.Amount.String(),
			)
		}
	}

	unit := decimal.NewFromFloat(e.cfg.RoundAmountUnit)
	minimum := decimal.NewFromFloat(e.cfg.RoundAmountMinimum)
	if unit.IsPositive() &&
		tx.Amount.GreaterThanOrEqual(minimum) &&
		tx.Amount.LessThan(reporting) &&
		tx.Amount.Mod(unit).IsZero() {
		result.RoundAmount = true
		result.Triggers = append(result.Triggers, model.TriggerRoundAmount)
	}
}

// checkGeography grades origin and destination countries. The contribution
// grows with the jurisdiction tier and with the transaction amount.
func (e *Evaluator) checkGeography(tx *model.TransactionRecord, result *Result) {
	tier := CountryRiskTier(tx.OriginCountry)
	if destTier := CountryRiskTier(tx.DestCountry); destTier > tier {
		tier = destTier
	}
	if tier == GeoTierStandard {
		return
	}

	base := map[GeoRiskTier]float64{
		GeoTierMonitored:  20,
		GeoTierHighRisk:   45,
		GeoTierSanctioned: 70,
	}[tier]

	// Larger transfers into risky jurisdictions score higher.
	amt, _ := tx.Amount.Float64()
	boost := 0.0
	switch {
	case amt >= 50000:
		boost = 30
	case amt >= 10000:
		boost = 15
	case amt >= 1000:
		boost = 5
	}

	result.GeoScore = base + boost
	if result.GeoScore > 100 {
		result.GeoScore = 100
	}
	result.Triggers = append(result.Triggers, model.TriggerHighRiskGeography)
}

// Describe renders the violated window for case narratives.
func (v WindowViolation) Describe() string {
	return fmt.Sprintf("%s limit %s exceeded by %s over %s window",
		v.Dimension, v.Limit.String(), v.Margin.String(), v.Window)
}
