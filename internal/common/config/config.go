package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	GenAI         GenAIConfig             `mapstructure:"genai"`
	Drafting      DraftingConfig          `mapstructure:"drafting"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Registry      RegistryConfig          `mapstructure:"registry"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
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

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Model Service Config ---

// GenAIConfig covers the reasoning/generation service. Analysis and
// extraction run against the reasoning model; draft generation and revision
// run against the generation model.
type GenAIConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	ReasoningModel  string  `mapstructure:"reasoning_model"`
	GenerationModel string  `mapstructure:"generation_model"`
	Timeout         int     `mapstructure:"timeout"` // milliseconds, per call
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxRetries      int     `mapstructure:"max_retries"`
}

// --- Drafting Config ---

// TierConfig is the purchased service level: price in credit units, the
// revision allotment it grants, and the styles composed for it.
type TierConfig struct {
	Price     int64    `mapstructure:"price"`
	Revisions int      `mapstructure:"revisions"`
	Styles    []string `mapstructure:"styles"`
}

// DraftingConfig carries the product constants of the drafting flow. These
// are configuration, not invariants: the shipped defaults mirror the live
// product (0.60 threshold, basic/standard/premium tiers).
type DraftingConfig struct {
	Tiers               map[string]TierConfig `mapstructure:"tiers"`
	CompletionThreshold float64               `mapstructure:"completion_threshold"`
	TargetLength        int                   `mapstructure:"target_length"` // characters per draft
	AnalysisCacheTTL    int                   `mapstructure:"analysis_cache_ttl"` // hours
}

// TierFor returns the tier settings, false when the tier name is unknown.
func (d DraftingConfig) TierFor(name string) (TierConfig, bool) {
	t, ok := d.Tiers[name]
	return t, ok
}

// --- Notifications ---

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// RegistryConfig points at the activity registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
