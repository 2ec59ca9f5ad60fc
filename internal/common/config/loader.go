package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges the environment-specific overlay,
// applies env-var overrides and defaults, and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GENAI_API_KEY
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

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // overlay is optional

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env in the usual places so workers and tests behave the
// same regardless of working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
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

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "grantpilot-workers"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Camunda.BrokerAddress == "" {
		cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 32
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 300000
	}
	if cfg.Database.Postgres.Host == "" {
		cfg.Database.Postgres.Host = "localhost"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.GenAI.APIKey == "" {
		cfg.GenAI.APIKey = os.Getenv("GENAI_API_KEY")
	}
	if cfg.GenAI.ReasoningModel == "" {
		cfg.GenAI.ReasoningModel = "gpt-4o"
	}
	if cfg.GenAI.GenerationModel == "" {
		cfg.GenAI.GenerationModel = "gpt-4o"
	}
	if cfg.GenAI.Timeout == 0 {
		cfg.GenAI.Timeout = 120000
	}
	if cfg.GenAI.MaxTokens == 0 {
		cfg.GenAI.MaxTokens = 4096
	}
	if cfg.GenAI.Temperature == 0 {
		cfg.GenAI.Temperature = 0.7
	}
	if cfg.GenAI.MaxRetries == 0 {
		cfg.GenAI.MaxRetries = 2
	}
	if cfg.Drafting.CompletionThreshold == 0 {
		cfg.Drafting.CompletionThreshold = 0.60
	}
	if cfg.Drafting.TargetLength == 0 {
		cfg.Drafting.TargetLength = 2500
	}
	if cfg.Drafting.AnalysisCacheTTL == 0 {
		cfg.Drafting.AnalysisCacheTTL = 7 * 24 // hours
	}
	if cfg.Drafting.Tiers == nil {
		cfg.Drafting.Tiers = map[string]TierConfig{}
	}
	if _, ok := cfg.Drafting.Tiers["basic"]; !ok {
		cfg.Drafting.Tiers["basic"] = TierConfig{
			Price:     9900,
			Revisions: 1,
			Styles:    []string{"balanced"},
		}
	}
	if _, ok := cfg.Drafting.Tiers["standard"]; !ok {
		cfg.Drafting.Tiers["standard"] = TierConfig{
			Price:     29900,
			Revisions: 3,
			Styles:    []string{"balanced", "data", "story"},
		}
	}
	if _, ok := cfg.Drafting.Tiers["premium"]; !ok {
		cfg.Drafting.Tiers["premium"] = TierConfig{
			Price:     49900,
			Revisions: 7,
			Styles:    []string{"balanced", "data", "story", "aggressive", "conservative"},
		}
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/activity-registry.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	for name, tier := range cfg.Drafting.Tiers {
		if tier.Price <= 0 {
			return fmt.Errorf("drafting.tiers.%s.price must be positive", name)
		}
		if tier.Revisions < 0 {
			return fmt.Errorf("drafting.tiers.%s.revisions must not be negative", name)
		}
		if len(tier.Styles) == 0 {
			return fmt.Errorf("drafting.tiers.%s.styles must not be empty", name)
		}
	}
	if cfg.Drafting.CompletionThreshold <= 0 || cfg.Drafting.CompletionThreshold > 1 {
		return fmt.Errorf("drafting.completion_threshold must be in (0, 1]")
	}
	return nil
}
