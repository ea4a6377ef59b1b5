package velocity

import (
	"context"
	"errors"
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

func testVelocityConfig() config.VelocityConfig {
	return config.VelocityConfig{
		Windows: []config.WindowLimit{
			{Window: time.Minute, MaxCount: 5, MaxAmount: 25000},
			{Window: 24 * time.Hour, MaxCount: 50, MaxAmount: 100000},
		},
		ReportingThreshold:  10000,
		StructuringFloor:    9000,
		StructuringMinCount: 3,
		RoundAmountUnit:     1000,
		RoundAmountMinimum:  5000,
	}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(NewMemoryCounterStore(), testVelocityConfig(), zap.NewNop().Sugar())
}

func tx(actorID string, amount float64) *model.TransactionRecord {
	return &model.TransactionRecord{
		ID:        "tx-1",
		ActorID:   actorID,
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "USD",
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestStructuringDetectedOnThirdSubThresholdTransaction(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := eval.Evaluate(ctx, tx("actor-1", 9500))
		require.NoError(t, err)
		assert.False(t, result.Structuring, "transaction %d is below the minimum count", i+1)
	}

	result, err := eval.Evaluate(ctx, tx("actor-1", 9500))
	require.NoError(t, err)
	assert.True(t, result.Structuring)
	assert.Contains(t, result.Triggers, model.TriggerStructuring)
	assert.False(t, result.CTRRequired, "sub-threshold amounts never require a CTR")
}

func TestStructuringBandBoundaries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		amount float64
		inBand bool
	}{
		{8999.99, false},
		{9000, true},
		{9500, true},
		{9999.99, true},
		{10000, false}, // reportable, not structuring
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.amount), func(t *testing.T) {
			eval := newTestEvaluator()
			var result *Result
			var err error
			for i := 0; i < 3; i++ {
				result, err = eval.Evaluate(ctx, tx("actor-band", tt.amount))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.inBand, result.Structuring)
		})
	}
}

func TestCTRRequiredAtReportingThreshold(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	result, err := eval.Evaluate(ctx, tx("actor-ctr", 10000))
	require.NoError(t, err)
	assert.True(t, result.CTRRequired)
	assert.Contains(t, result.Triggers, model.TriggerCTRRequired)

	result, err = eval.Evaluate(ctx, tx("actor-ctr2", 9999.99))
	require.NoError(t, err)
	assert.False(t, result.CTRRequired)
}

func TestRoundAmountDetection(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		amount float64
		round  bool
	}{
		{5000, true},
		{8000, true},
		{4000, false},    // below minimum
		{7500, false},    // not a unit multiple
		{10000, false},   // reportable handles it instead
		{9999.99, false}, // not a unit multiple
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.amount), func(t *testing.T) {
			eval := newTestEvaluator()
			result, err := eval.Evaluate(ctx, tx("actor-round", tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.round, result.RoundAmount)
		})
	}
}

func TestWindowCountViolation(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	var result *Result
	var err error
	for i := 0; i < 5; i++ {
		result, err = eval.Evaluate(ctx, tx("actor-vel", 10))
		require.NoError(t, err)
	}

	require.True(t, result.Violated())
	assert.Contains(t, result.Triggers, model.TriggerVelocityExceeded)

	found := false
	for _, v := range result.Violations {
		if v.Dimension == "count" && v.Window == time.Minute {
			found = true
			assert.Equal(t, "5", v.Observed.String())
		}
	}
	assert.True(t, found, "expected a count violation on the 1m window")
}

func TestWindowAmountViolation(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	// Two transactions totalling the 1m amount ceiling.
	_, err := eval.Evaluate(ctx, tx("actor-amt", 15000))
	require.NoError(t, err)
	result, err := eval.Evaluate(ctx, tx("actor-amt", 10000))
	require.NoError(t, err)

	require.True(t, result.Violated())
	found := false
	for _, v := range result.Violations {
		if v.Dimension == "amount" && v.Window == time.Minute {
			found = true
		}
	}
	assert.True(t, found, "expected an amount violation on the 1m window")
}

func TestGeographyScoring(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	record := tx("actor-geo", 20000)
	record.OriginCountry = "US"
	record.DestCountry = "IR"

	result, err := eval.Evaluate(ctx, record)
	require.NoError(t, err)

	// Sanctioned base 70 plus the 10k amount boost.
	assert.Equal(t, 85.0, result.GeoScore)
	assert.Contains(t, result.Triggers, model.TriggerHighRiskGeography)
}

func TestGeographyUsesWorstEnd(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	record := tx("actor-geo2", 500)
	record.OriginCountry = "KP"
	record.DestCountry = "DE"

	result, err := eval.Evaluate(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, 70.0, result.GeoScore)
}

func TestDomesticTransferScoresZeroGeo(t *testing.T) {
	eval := newTestEvaluator()
	ctx := context.Background()

	record := tx("actor-geo3", 500)
	record.OriginCountry = "US"
	record.DestCountry = "GB"

	result, err := eval.Evaluate(ctx, record)
	require.NoError(t, err)
	assert.Zero(t, result.GeoScore)
	assert.NotContains(t, result.Triggers, model.TriggerHighRiskGeography)
}

type failingCounterStore struct{}

func (failingCounterStore) Record(context.Context, string, time.Duration, decimal.Decimal) (WindowTotals, error) {
	return WindowTotals{}, &model.TransientError{Dependency: "velocity-store", Err: errors.New("connection refused")}
}

func (failingCounterStore) RecordStructuring(context.Context, string, time.Time) (int64, error) {
	return 0, &model.TransientError{Dependency: "velocity-store", Err: errors.New("connection refused")}
}

func TestStoreFailureDegradesInsteadOfPassing(t *testing.T) {
	eval := NewEvaluator(failingCounterStore{}, testVelocityConfig(), zap.NewNop().Sugar())

	result, err := eval.Evaluate(context.Background(), tx("actor-deg", 9500))
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Contains(t, result.Triggers, model.TriggerServiceDegraded)
	assert.False(t, result.Structuring, "no claim of a clean or dirty verdict while degraded")
}
