// Configuration loading and validation for the AML evaluation pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/model"
)

// Config is the root configuration for the service. Validation failures are
// fatal at startup; per-event processing never consults raw config files.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Ingest      IngestConfig     `mapstructure:"ingest"`
	Velocity    VelocityConfig   `mapstructure:"velocity"`
	Pattern     PatternConfig    `mapstructure:"pattern"`
	Screening   ScreeningConfig  `mapstructure:"screening"`
	Scoring     ScoringConfig    `mapstructure:"scoring"`
	Escalation  EscalationConfig `mapstructure:"escalation"`
}

// KafkaConfig contains event-stream connection settings.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	EventTopic      string        `mapstructure:"event_topic"`
	AlertTopic      string        `mapstructure:"alert_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig contains shared-state store settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IngestConfig controls retry, circuit breaking and idempotency behavior.
type IngestConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts"`
	RetryBackoffMin      time.Duration `mapstructure:"retry_backoff_min"`
	RetryBackoffMax      time.Duration `mapstructure:"retry_backoff_max"`
	IdempotencyTTL       time.Duration `mapstructure:"idempotency_ttl"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	BreakerFailures      int64         `mapstructure:"breaker_failures"`
	BreakerSuccesses     int64         `mapstructure:"breaker_successes"`
	BreakerCooldown      time.Duration `mapstructure:"breaker_cooldown"`
	BreakerHalfOpenMax   int64         `mapstructure:"breaker_half_open_max"`
	BreakerFailureWindow time.Duration `mapstructure:"breaker_failure_window"`
}

// WindowLimit pairs a sliding-window duration with count/amount ceilings.
type WindowLimit struct {
	Window    time.Duration `mapstructure:"window"`
	MaxCount  int64         `mapstructure:"max_count"`
	MaxAmount float64       `mapstructure:"max_amount"`
}

// VelocityConfig controls the velocity and threshold evaluator.
type VelocityConfig struct {
	Windows             []WindowLimit `mapstructure:"windows"`
	ReportingThreshold  float64       `mapstructure:"reporting_threshold"`
	StructuringFloor    float64       `mapstructure:"structuring_floor"`
	StructuringMinCount int64         `mapstructure:"structuring_min_count"`
	RoundAmountUnit     float64       `mapstructure:"round_amount_unit"`
	RoundAmountMinimum  float64       `mapstructure:"round_amount_minimum"`
}

// PatternConfig controls behavioral anomaly detection.
type PatternConfig struct {
	WindowSize             int           `mapstructure:"window_size"`
	RapidInterval          time.Duration `mapstructure:"rapid_interval"`
	SmurfingCounterparties int           `mapstructure:"smurfing_counterparties"`
	SmurfingMinTotal       int           `mapstructure:"smurfing_min_total"`
	LayeringRatio          float64       `mapstructure:"layering_ratio"`
	LayeringMinTotal       int           `mapstructure:"layering_min_total"`
	QuietHourStart         int           `mapstructure:"quiet_hour_start"`
	QuietHourEnd           int           `mapstructure:"quiet_hour_end"`
	QuietHourShare         float64       `mapstructure:"quiet_hour_share"`
	CountryHopLimit        int           `mapstructure:"country_hop_limit"`
}

// ScreeningConfig controls the fuzzy identity matcher.
type ScreeningConfig struct {
	AcceptThreshold float64       `mapstructure:"accept_threshold"`
	HighConfidence  float64       `mapstructure:"high_confidence"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	HistoryLimit    int           `mapstructure:"history_limit"`
}

// ScoringConfig holds the fixed aggregation weights of the composite scorer.
type ScoringConfig struct {
	ProfileWeight  float64 `mapstructure:"profile_weight"`
	PatternWeight  float64 `mapstructure:"pattern_weight"`
	GeoWeight      float64 `mapstructure:"geo_weight"`
	VelocityWeight float64 `mapstructure:"velocity_weight"`
	MatchWeight    float64 `mapstructure:"match_weight"`
	MediumFloor    float64 `mapstructure:"medium_floor"`
	HighFloor      float64 `mapstructure:"high_floor"`
	CriticalFloor  float64 `mapstructure:"critical_floor"`
}

// EscalationConfig holds per-tier SLA deadlines.
type EscalationConfig struct {
	MediumSLA   time.Duration `mapstructure:"medium_sla"`
	HighSLA     time.Duration `mapstructure:"high_sla"`
	CriticalSLA time.Duration `mapstructure:"critical_sla"`
}

// Load reads configuration from yaml files and AMLGUARD_-prefixed environment
// variables, applies defaults and validates the result.
func Load(logger *zap.SugaredLogger, configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AMLGUARD")

	setDefaults(v)

	if len(configPaths) == 0 {
		configPaths = []string{"./config.yaml", "/etc/amlguard/config.yaml"}
	}

	var loaded []string
	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}

	if len(loaded) == 0 {
		logger.Warnw("No configuration files found, using defaults and environment variables")
	} else {
		logger.Infow("Loaded configuration files", "files", loaded)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Infow("Configuration loaded",
		"environment", cfg.Environment,
		"event_topic", cfg.Kafka.EventTopic,
		"windows", len(cfg.Velocity.Windows),
	)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.event_topic", "financial-activity-events")
	v.SetDefault("kafka.alert_topic", "aml-alerts")
	v.SetDefault("kafka.dead_letter_topic", "aml-dead-letter")
	v.SetDefault("kafka.consumer_group", "amlguard")
	v.SetDefault("kafka.read_timeout", 10*time.Second)
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ingest.max_attempts", 4)
	v.SetDefault("ingest.retry_backoff_min", 200*time.Millisecond)
	v.SetDefault("ingest.retry_backoff_max", 5*time.Second)
	v.SetDefault("ingest.idempotency_ttl", 24*time.Hour)
	v.SetDefault("ingest.sweep_interval", 10*time.Minute)
	v.SetDefault("ingest.breaker_failures", 5)
	v.SetDefault("ingest.breaker_successes", 3)
	v.SetDefault("ingest.breaker_cooldown", 30*time.Second)
	v.SetDefault("ingest.breaker_half_open_max", 2)
	v.SetDefault("ingest.breaker_failure_window", time.Minute)

	v.SetDefault("velocity.windows", []map[string]interface{}{
		{"window": "1m", "max_count": 5, "max_amount": 25000.0},
		{"window": "1h", "max_count": 20, "max_amount": 75000.0},
		{"window": "24h", "max_count": 50, "max_amount": 100000.0},
	})
	v.SetDefault("velocity.reporting_threshold", 10000.0)
	v.SetDefault("velocity.structuring_floor", 9000.0)
	v.SetDefault("velocity.structuring_min_count", 3)
	v.SetDefault("velocity.round_amount_unit", 1000.0)
	v.SetDefault("velocity.round_amount_minimum", 5000.0)

	v.SetDefault("pattern.window_size", 100)
	v.SetDefault("pattern.rapid_interval", 10*time.Minute)
	v.SetDefault("pattern.smurfing_counterparties", 5)
	v.SetDefault("pattern.smurfing_min_total", 10)
	v.SetDefault("pattern.layering_ratio", 0.8)
	v.SetDefault("pattern.layering_min_total", 5)
	v.SetDefault("pattern.quiet_hour_start", 1)
	v.SetDefault("pattern.quiet_hour_end", 5)
	v.SetDefault("pattern.quiet_hour_share", 0.5)
	v.SetDefault("pattern.country_hop_limit", 3)

	v.SetDefault("screening.accept_threshold", 75.0)
	v.SetDefault("screening.high_confidence", 90.0)
	v.SetDefault("screening.provider_timeout", 3*time.Second)
	v.SetDefault("screening.history_limit", 100)

	v.SetDefault("scoring.profile_weight", 0.20)
	v.SetDefault("scoring.pattern_weight", 0.20)
	v.SetDefault("scoring.geo_weight", 0.15)
	v.SetDefault("scoring.velocity_weight", 0.20)
	v.SetDefault("scoring.match_weight", 0.25)
	v.SetDefault("scoring.medium_floor", 25.0)
	v.SetDefault("scoring.high_floor", 50.0)
	v.SetDefault("scoring.critical_floor", 85.0)

	v.SetDefault("escalation.medium_sla", 24*time.Hour)
	v.SetDefault("escalation.high_sla", 24*time.Hour)
	v.SetDefault("escalation.critical_sla", 4*time.Hour)
}

// Validate checks threshold and weight coherence. Any failure here is a
// ConfigurationError and aborts startup.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return &model.ConfigurationError{Setting: "kafka.brokers", Reason: "at least one broker required"}
	}
	if c.Ingest.MaxAttempts < 1 {
		return &model.ConfigurationError{Setting: "ingest.max_attempts", Reason: "must be at least 1"}
	}
	if c.Ingest.IdempotencyTTL <= 0 {
		return &model.ConfigurationError{Setting: "ingest.idempotency_ttl", Reason: "must be positive"}
	}
	if len(c.Velocity.Windows) == 0 {
		return &model.ConfigurationError{Setting: "velocity.windows", Reason: "at least one window required"}
	}
	for i, w := range c.Velocity.Windows {
		if w.Window <= 0 {
			return &model.ConfigurationError{
				Setting: fmt.Sprintf("velocity.windows[%d].window", i),
				Reason:  "must be positive",
			}
		}
	}
	if c.Velocity.StructuringFloor >= c.Velocity.ReportingThreshold {
		return &model.ConfigurationError{
			Setting: "velocity.structuring_floor",
			Reason:  "must be below reporting_threshold",
		}
	}
	weights := c.Scoring.ProfileWeight + c.Scoring.PatternWeight + c.Scoring.GeoWeight +
		c.Scoring.VelocityWeight + c.Scoring.MatchWeight
	if weights <= 0 {
		return &model.ConfigurationError{Setting: "scoring", Reason: "weights must sum to a positive value"}
	}
	if !(c.Scoring.MediumFloor < c.Scoring.HighFloor && c.Scoring.HighFloor < c.Scoring.CriticalFloor) {
		return &model.ConfigurationError{Setting: "scoring", Reason: "tier floors must be strictly increasing"}
	}
	if c.Screening.AcceptThreshold <= 0 || c.Screening.AcceptThreshold > 100 {
		return &model.ConfigurationError{Setting: "screening.accept_threshold", Reason: "must be in (0,100]"}
	}
	if c.Screening.HighConfidence < c.Screening.AcceptThreshold {
		return &model.ConfigurationError{
			Setting: "screening.high_confidence",
			Reason:  "must be at or above accept_threshold",
		}
	}
	return nil
}
