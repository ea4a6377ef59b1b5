package pattern

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/model"
)

func testPatternConfig() config.PatternConfig {
	return config.PatternConfig{
		WindowSize:             100,
		RapidInterval:          10 * time.Minute,
		SmurfingCounterparties: 5,
		SmurfingMinTotal:       10,
		LayeringRatio:          0.8,
		LayeringMinTotal:       5,
		QuietHourStart:         1,
		QuietHourEnd:           5,
		QuietHourShare:         0.5,
		CountryHopLimit:        3,
	}
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(testPatternConfig(), zap.NewNop().Sugar())
}

func patternTx(actorID, counterparty string, amount float64, ts time.Time) *model.TransactionRecord {
	return &model.TransactionRecord{
		ID:             fmt.Sprintf("tx-%d", ts.UnixNano()),
		ActorID:        actorID,
		CounterpartyID: counterparty,
		Amount:         decimal.NewFromFloat(amount),
		Timestamp:      ts,
	}
}

func findAnomaly(anomalies []model.Anomaly, kind model.TriggerType) *model.Anomaly {
	for i := range anomalies {
		if anomalies[i].Type == kind {
			return &anomalies[i]
		}
	}
	return nil
}

func TestRapidSuccessionSeverityGrows(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	anomalies := analyzer.Analyze(ctx, patternTx("actor-1", "cp-1", 100, base))
	assert.Nil(t, findAnomaly(anomalies, model.TriggerRapidSuccession))

	anomalies = analyzer.Analyze(ctx, patternTx("actor-1", "cp-1", 100, base.Add(2*time.Minute)))
	rapid := findAnomaly(anomalies, model.TriggerRapidSuccession)
	require.NotNil(t, rapid)
	assert.Equal(t, model.SeverityLow, rapid.Severity)

	// Six transactions two minutes apart give five rapid gaps.
	for i := 2; i < 6; i++ {
		anomalies = analyzer.Analyze(ctx, patternTx("actor-1", "cp-1", 100, base.Add(time.Duration(2*i)*time.Minute)))
	}
	rapid = findAnomaly(anomalies, model.TriggerRapidSuccession)
	require.NotNil(t, rapid)
	assert.Equal(t, model.SeverityHigh, rapid.Severity)
}

func TestSpacedTransactionsAreNotRapid(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var anomalies []model.Anomaly
	for i := 0; i < 4; i++ {
		anomalies = analyzer.Analyze(ctx, patternTx("actor-2", "cp-1", 100, base.Add(time.Duration(i)*time.Hour)))
	}
	assert.Nil(t, findAnomaly(anomalies, model.TriggerRapidSuccession))
}

func TestSmurfingNeedsBothVolumeAndSpread(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	// Eleven transactions across six distinct counterparties.
	var anomalies []model.Anomaly
	for i := 0; i < 11; i++ {
		cp := fmt.Sprintf("cp-%d", i%6)
		anomalies = analyzer.Analyze(ctx, patternTx("actor-smurf", cp, 200, base.Add(time.Duration(i)*time.Hour)))
	}
	smurf := findAnomaly(anomalies, model.TriggerSmurfing)
	require.NotNil(t, smurf)
	assert.Equal(t, model.SeverityHigh, smurf.Severity)

	// Same volume against a single counterparty is not smurfing.
	analyzer2 := newTestAnalyzer()
	for i := 0; i < 11; i++ {
		anomalies = analyzer2.Analyze(ctx, patternTx("actor-loyal", "cp-only", 200, base.Add(time.Duration(i)*time.Hour)))
	}
	assert.Nil(t, findAnomaly(anomalies, model.TriggerSmurfing))
}

func TestLayeringFlagsDistinctAmountChurn(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	// Every amount distinct: ratio 1.0 over six transactions.
	var anomalies []model.Anomaly
	for i := 0; i < 6; i++ {
		anomalies = analyzer.Analyze(ctx, patternTx("actor-layer", "cp-1", 100.50+float64(i), base.Add(time.Duration(i)*time.Hour)))
	}
	layering := findAnomaly(anomalies, model.TriggerLayering)
	require.NotNil(t, layering)
	assert.Equal(t, model.SeverityMedium, layering.Severity)

	// Identical amounts: ratio far below the bound.
	analyzer2 := newTestAnalyzer()
	for i := 0; i < 6; i++ {
		anomalies = analyzer2.Analyze(ctx, patternTx("actor-flat", "cp-1", 100, base.Add(time.Duration(i)*time.Hour)))
	}
	assert.Nil(t, findAnomaly(anomalies, model.TriggerLayering))
}

func TestUnusualHoursConcentration(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()

	// All activity between 02:00 and 04:00 UTC.
	var anomalies []model.Anomaly
	for i := 0; i < 6; i++ {
		ts := time.Date(2026, 3, 14+i, 2, 30, 0, 0, time.UTC)
		anomalies = analyzer.Analyze(ctx, patternTx("actor-night", "cp-1", 100, ts))
	}
	require.NotNil(t, findAnomaly(anomalies, model.TriggerUnusualHours))

	// Daytime activity stays quiet.
	analyzer2 := newTestAnalyzer()
	for i := 0; i < 6; i++ {
		ts := time.Date(2026, 3, 14+i, 14, 30, 0, 0, time.UTC)
		anomalies = analyzer2.Analyze(ctx, patternTx("actor-day", "cp-1", 100, ts))
	}
	assert.Nil(t, findAnomaly(anomalies, model.TriggerUnusualHours))
}

func TestGeographicAnomalyBetweenHighRiskJurisdictions(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()

	record := patternTx("actor-geo", "cp-1", 5000, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	record.OriginCountry = "IR"
	record.DestCountry = "KP"

	anomalies := analyzer.Analyze(ctx, record)
	geo := findAnomaly(anomalies, model.TriggerGeographicAnomaly)
	require.NotNil(t, geo)
	assert.Equal(t, model.SeverityHigh, geo.Severity)
}

func TestGeographicAnomalyOnCountryHopping(t *testing.T) {
	analyzer := newTestAnalyzer()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	countries := []string{"US", "GB", "FR", "JP"}
	var anomalies []model.Anomaly
	for i, country := range countries {
		record := patternTx("actor-hop", "cp-1", 100, base.Add(time.Duration(i)*time.Hour))
		record.OriginCountry = "US"
		record.DestCountry = country
		anomalies = analyzer.Analyze(ctx, record)
	}
	geo := findAnomaly(anomalies, model.TriggerGeographicAnomaly)
	require.NotNil(t, geo)
	assert.Equal(t, model.SeverityMedium, geo.Severity)
}

func TestWindowIsBoundedAndOrdered(t *testing.T) {
	cfg := testPatternConfig()
	cfg.WindowSize = 5
	analyzer := NewAnalyzer(cfg, zap.NewNop().Sugar())
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	// Insert out of order; the oldest entries must be evicted.
	for _, offset := range []int{9, 2, 7, 1, 8, 3, 6} {
		analyzer.Analyze(context.Background(), patternTx("actor-win", "cp-1", 100, base.Add(time.Duration(offset)*time.Hour)))
	}

	window := analyzer.appendToWindow(patternTx("actor-win", "cp-1", 100, base.Add(10*time.Hour)))
	require.Len(t, window, 5)
	for i := 1; i < len(window); i++ {
		assert.False(t, window[i].Timestamp.Before(window[i-1].Timestamp))
	}
}

func TestHighestSeverity(t *testing.T) {
	assert.Zero(t, HighestSeverity(nil))
	assert.Equal(t, 30.0, HighestSeverity([]model.Anomaly{{Severity: model.SeverityLow}}))
	assert.Equal(t, 90.0, HighestSeverity([]model.Anomaly{
		{Severity: model.SeverityMedium},
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityLow},
	}))
}
