// Package pattern detects behavioral anomalies across an actor's recent
// transaction window: rapid succession, smurfing, layering, unusual-hour
// concentration and geographic anomalies. The analyzer only emits signals;
// it never blocks processing.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
	"github.com/waqiti/amlguard/internal/velocity"
)

// Analyzer keeps a bounded per-actor window of recent transactions and runs
// the behavioral detections over it.
type Analyzer struct {
	mu      sync.RWMutex
	windows map[string][]model.TransactionRecord
	cfg     config.PatternConfig
	logger  *zap.SugaredLogger
}

// NewAnalyzer creates a pattern analyzer.
func NewAnalyzer(cfg config.PatternConfig, logger *zap.SugaredLogger) *Analyzer {
	return &Analyzer{
		windows: make(map[string][]model.TransactionRecord),
		cfg:     cfg,
		logger:  logger,
	}
}

// Analyze appends the transaction to the actor's window and returns every
// anomaly the window now exhibits.
func (a *Analyzer) Analyze(ctx context.Context, tx *model.TransactionRecord) []model.Anomaly {
	window := a.appendToWindow(tx)

	var anomalies []model.Anomaly
	now := time.Now()

	if anomaly := a.detectRapidSuccession(window, now); anomaly != nil {
		anomalies = append(anomalies, *anomaly)
	}
	if anomaly := a.detectSmurfing(window, now); anomaly != nil {
		anomalies = append(anomalies, *anomaly)
	}
	if anomaly := a.detectLayering(window, now); anomaly != nil {
		anomalies = append(anomalies, *anomaly)
	}
	if anomaly := a.detectUnusualHours(window, now); anomaly != nil {
		anomalies = append(anomalies, *anomaly)
	}
	if anomaly := a.detectGeographicAnomaly(window, now); anomaly != nil {
		anomalies = append(anomalies, *anomaly)
	}

	if len(anomalies) > 0 {
		a.logger.Infow("Behavioral anomalies detected",
			"actor_id", tx.ActorID,
			"count", len(anomalies),
			"window_size", len(window),
		)
	}

	return anomalies
}

// appendToWindow adds the transaction and trims the window to its bound,
// keeping the most recent entries in timestamp order.
func (a *Analyzer) appendToWindow(tx *model.TransactionRecord) []model.TransactionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := append(a.windows[tx.ActorID], *tx)
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})
	if len(window) > a.cfg.WindowSize {
		window = window[len(window)-a.cfg.WindowSize:]
	}
	a.windows[tx.ActorID] = window

	out := make([]model.TransactionRecord, len(window))
	copy(out, window)
	return out
}

// detectRapidSuccession flags consecutive transactions closer together than
// the configured interval.
func (a *Analyzer) detectRapidSuccession(window []model.TransactionRecord, now time.Time) *model.Anomaly {
	if len(window) < 2 {
		return nil
	}

	rapid := 0
	for i := 1; i < len(window); i++ {
		if window[i].Timestamp.Sub(window[i-1].Timestamp) <= a.cfg.RapidInterval {
			rapid++
		}
	}
	if rapid == 0 {
		return nil
	}

	severity := model.SeverityLow
	if rapid >= 5 {
		severity = model.SeverityHigh
	} else if rapid >= 2 {
		severity = model.SeverityMedium
	}

	return &model.Anomaly{
		Type:        model.TriggerRapidSuccession,
		Severity:    severity,
		Description: fmt.Sprintf("%d consecutive transactions within %s of each other", rapid, a.cfg.RapidInterval),
		DetectedAt:  now,
	}
}

// detectSmurfing flags a high transaction count spread across many distinct
// counterparties.
func (a *Analyzer) detectSmurfing(window []model.TransactionRecord, now time.Time) *model.Anomaly {
	if len(window) <= a.cfg.SmurfingMinTotal {
		return nil
	}

	counterparties := make(map[string]struct{})
	for _, tx := range window {
		if tx.CounterpartyID != "" {
			counterparties[tx.CounterpartyID] = struct{}{}
		}
	}
	if len(counterparties) <= a.cfg.SmurfingCounterparties {
		return nil
	}

	return &model.Anomaly{
		Type:     model.TriggerSmurfing,
		Severity: model.SeverityHigh,
		Description: fmt.Sprintf("%d transactions across %d distinct counterparties",
			len(window), len(counterparties)),
		DetectedAt: now,
	}
}

// detectLayering flags a high ratio of distinct amounts to transaction
// count, indicating structured variability.
func (a *Analyzer) detectLayering(window []model.TransactionRecord, now time.Time) *model.Anomaly {
	if len(window) < a.cfg.LayeringMinTotal {
		return nil
	}

	distinct := make(map[string]struct{})
	for _, tx := range window {
		distinct[tx.Amount.String()] = struct{}{}
	}

	ratio := float64(len(distinct)) / float64(len(window))
	if ratio <= a.cfg.LayeringRatio {
		return nil
	}

	return &model.Anomaly{
		Type:     model.TriggerLayering,
		Severity: model.SeverityMedium,
		Description: fmt.Sprintf("distinct-amount ratio %.2f across %d transactions",
			ratio, len(window)),
		DetectedAt: now,
	}
}

// detectUnusualHours flags a disproportionate share of activity inside the
// configured quiet band.
func (a *Analyzer) detectUnusualHours(window []model.TransactionRecord, now time.Time) *model.Anomaly {
	if len(window) < a.cfg.LayeringMinTotal {
		return nil
	}

	quiet := 0
	for _, tx := range window {
		hour := tx.Timestamp.UTC().Hour()
		if hour >= a.cfg.QuietHourStart && hour < a.cfg.QuietHourEnd {
			quiet++
		}
	}

	share := float64(quiet) / float64(len(window))
	if share < a.cfg.QuietHourShare {
		return nil
	}

	return &model.Anomaly{
		Type:     model.TriggerUnusualHours,
		Severity: model.SeverityMedium,
		Description: fmt.Sprintf("%.0f%% of transactions between %02d:00 and %02d:00 UTC",
			share*100, a.cfg.QuietHourStart, a.cfg.QuietHourEnd),
		DetectedAt: now,
	}
}

// detectGeographicAnomaly flags country hopping across the window or
// transactions touching high-risk jurisdictions on both ends.
func (a *Analyzer) detectGeographicAnomaly(window []model.TransactionRecord, now time.Time) *model.Anomaly {
	countries := make(map[string]struct{})
	bothHighRisk := false

	for _, tx := range window {
		if tx.OriginCountry != "" {
			countries[tx.OriginCountry] = struct{}{}
		}
		if tx.DestCountry != "" {
			countries[tx.DestCountry] = struct{}{}
		}
		if velocity.IsHighRiskCountry(tx.OriginCountry) && velocity.IsHighRiskCountry(tx.DestCountry) {
			bothHighRisk = true
		}
	}

	if bothHighRisk {
		return &model.Anomaly{
			Type:        model.TriggerGeographicAnomaly,
			Severity:    model.SeverityHigh,
			Description: "transactions between two high-risk jurisdictions",
			DetectedAt:  now,
		}
	}

	if a.cfg.CountryHopLimit > 0 && len(countries) > a.cfg.CountryHopLimit {
		return &model.Anomaly{
			Type:     model.TriggerGeographicAnomaly,
			Severity: model.SeverityMedium,
			Description: fmt.Sprintf("activity touching %d distinct countries in recent window",
				len(countries)),
			DetectedAt: now,
		}
	}

	return nil
}

// HighestSeverity returns the numeric weight of the strongest anomaly in the
// slice, on a 0-100 scale the composite scorer consumes.
func HighestSeverity(anomalies []model.Anomaly) float64 {
	score := 0.0
	for _, anomaly := range anomalies {
		weight := map[model.Severity]float64{
			model.SeverityLow:    30,
			model.SeverityMedium: 60,
			model.SeverityHigh:   90,
		}[anomaly.Severity]
		if weight > score {
			score = weight
		}
	}
	return score
}
