// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DB_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overrides (config.development, config.production)
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Load .env from multiple possible locations
func loadEnvFile() {
	// Try multiple paths (for running from different directories)
	possiblePaths := []string{
		".env",          // Current directory
		"../.env",       // Parent directory
		"../../.env",    // Two levels up (for tests in test/e2e/)
		"../../../.env", // Three levels up
	}

	// Also try to find project root by looking for go.mod
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Notifications.SNS.TopicARN == "" {
		if val := os.Getenv("SNS_TOPIC_ARN"); val != "" {
			cfg.Notifications.SNS.TopicARN = val
		}
	}
	if cfg.Prediction.APIKey == "" {
		if val := os.Getenv("PREDICTION_API_KEY"); val != "" {
			cfg.Prediction.APIKey = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "dca-platform"
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = ":9090"
	}
	if cfg.App.RefreshSchedule == "" {
		cfg.App.RefreshSchedule = "0 0 * * * *" // hourly
	}

	if cfg.Queues.IntakeSchedule == "" {
		cfg.Queues.IntakeSchedule = "*/15 * * * * *"
	}
	if cfg.Queues.CommandSchedule == "" {
		cfg.Queues.CommandSchedule = "*/15 * * * * *"
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.CaseIndex == "" {
		cfg.Database.Elasticsearch.CaseIndex = "cases"
	}
	if cfg.Database.Elasticsearch.DCAIndex == "" {
		cfg.Database.Elasticsearch.DCAIndex = "dca-scores"
	}

	// Allocation defaults mirror the operational baseline used in production
	if cfg.Allocation.Weights == (AllocationWeights{}) {
		cfg.Allocation.Weights = AllocationWeights{
			Specialization: 30,
			RecoveryRate:   0.4,
			SLACompliance:  0.3,
			LoadBalance:    20,
			Satisfaction:   10,
			Preferred:      15,
		}
	}
	if cfg.Allocation.MaxAttempts == 0 {
		cfg.Allocation.MaxAttempts = 5
	}
	if cfg.Allocation.MaxConflictRetries == 0 {
		cfg.Allocation.MaxConflictRetries = 2
	}
	if cfg.Allocation.RetrySchedule == "" {
		cfg.Allocation.RetrySchedule = "0 */10 * * * *"
	}
	if cfg.Allocation.DefaultSLA.ResponseTimeHours == 0 {
		cfg.Allocation.DefaultSLA.ResponseTimeHours = 24
	}
	if cfg.Allocation.DefaultSLA.ResolutionTimeHours == 0 {
		cfg.Allocation.DefaultSLA.ResolutionTimeHours = 720
	}
	if cfg.Allocation.DefaultSLA.EscalationTimeHours == 0 {
		cfg.Allocation.DefaultSLA.EscalationTimeHours = 48
	}

	// SLA monitor defaults
	if cfg.SLA.SweepSchedule == "" {
		cfg.SLA.SweepSchedule = "0 */15 * * * *"
	}
	if cfg.SLA.MaxEscalationLevel == 0 {
		cfg.SLA.MaxEscalationLevel = 5
	}
	if cfg.SLA.ReescalateAfterHours == 0 {
		cfg.SLA.ReescalateAfterHours = 24
	}

	// Scoring defaults
	if cfg.Scoring.RecomputeSchedule == "" {
		cfg.Scoring.RecomputeSchedule = "0 0 2 * * *"
	}
	if cfg.Scoring.PerformanceWeight == 0 {
		cfg.Scoring.PerformanceWeight = 0.4
	}
	if cfg.Scoring.ReliabilityWeight == 0 {
		cfg.Scoring.ReliabilityWeight = 0.3
	}
	if cfg.Scoring.EfficiencyWeight == 0 {
		cfg.Scoring.EfficiencyWeight = 0.3
	}

	// Prediction client defaults
	if cfg.Prediction.Timeout == 0 {
		cfg.Prediction.Timeout = 10000
	}

	if cfg.Notifications.Redis.Channel == "" {
		cfg.Notifications.Redis.Channel = "case-events"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Prediction.Enabled && cfg.Prediction.BaseURL == "" {
		return fmt.Errorf("prediction.base_url is required when prediction is enabled")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
