// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Allocation    AllocationConfig    `mapstructure:"allocation"`
	SLA           SLAConfig           `mapstructure:"sla"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Prediction    PredictionConfig    `mapstructure:"prediction"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Queues        QueueConfig         `mapstructure:"queues"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	// RefreshSchedule drives the time-based recomputation of derived
	// case state (aging, overdue days).
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	// PolicyFile points at the JSON scoring/priority policy. Empty means
	// built-in defaults.
	PolicyFile string `mapstructure:"policy_file"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	CaseIndex string   `mapstructure:"case_index"`
	DCAIndex  string   `mapstructure:"dca_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Engine Configuration Sections ---

// AllocationConfig holds the ranking weights and retry bounds of the
// allocation engine. Weights are policy, not code constants.
type AllocationConfig struct {
	Weights         AllocationWeights `mapstructure:"weights"`
	PreferredDCAs   []string          `mapstructure:"preferred_dcas"`
	MaxAttempts     int               `mapstructure:"max_attempts"`     // candidates tried per allocation
	MaxConflictRetries int            `mapstructure:"max_conflict_retries"`
	RetrySchedule   string            `mapstructure:"retry_schedule"`   // cron spec for deferred retries
	DefaultSLA      SLADefaults       `mapstructure:"default_sla"`
}

type AllocationWeights struct {
	Specialization float64 `mapstructure:"specialization"`
	RecoveryRate   float64 `mapstructure:"recovery_rate"`
	SLACompliance  float64 `mapstructure:"sla_compliance"`
	LoadBalance    float64 `mapstructure:"load_balance"`
	Satisfaction   float64 `mapstructure:"satisfaction"`
	Preferred      float64 `mapstructure:"preferred"`
}

type SLADefaults struct {
	ResponseTimeHours   int `mapstructure:"response_time_hours"`
	ResolutionTimeHours int `mapstructure:"resolution_time_hours"`
	EscalationTimeHours int `mapstructure:"escalation_time_hours"`
}

// SLAConfig holds the SLA monitor schedule and escalation policy.
type SLAConfig struct {
	SweepSchedule        string `mapstructure:"sweep_schedule"` // cron spec
	MaxEscalationLevel   int    `mapstructure:"max_escalation_level"`
	ReescalateAfterHours int    `mapstructure:"reescalate_after_hours"`
}

// QueueConfig holds the drain cadence of the Redis-backed inbound
// queues (case intake and agent commands).
type QueueConfig struct {
	IntakeSchedule  string `mapstructure:"intake_schedule"`  // cron spec
	CommandSchedule string `mapstructure:"command_schedule"` // cron spec
}

// ScoringConfig holds the aggregator cadence and score blend weights.
type ScoringConfig struct {
	RecomputeSchedule string  `mapstructure:"recompute_schedule"` // cron spec
	PerformanceWeight float64 `mapstructure:"performance_weight"`
	ReliabilityWeight float64 `mapstructure:"reliability_weight"`
	EfficiencyWeight  float64 `mapstructure:"efficiency_weight"`
}

// PredictionConfig holds settings for the predictive-scoring client.
type PredictionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// NotificationConfig holds settings for event emission to the
// notification collaborator.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Redis struct {
		Enabled bool   `mapstructure:"enabled"`
		Channel string `mapstructure:"channel"`
	} `mapstructure:"redis"`
}

// ReportingConfig holds the snapshot indexer settings.
type ReportingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
