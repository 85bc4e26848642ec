package common

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all daemon configuration.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Documents    DocumentsConfig    `mapstructure:"documents"`
	Normalize    NormalizeConfig    `mapstructure:"normalize"`
	Providers    []ProviderConfig   `mapstructure:"providers"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
}

// DatabaseConfig selects and tunes the job ledger backend.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // "postgres" | "sqlite" | "memory"
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

// DocumentsConfig points at the document store root.
type DocumentsConfig struct {
	Root string `mapstructure:"root"`
}

// NormalizeConfig configures the text/image normalizer ladder.
type NormalizeConfig struct {
	Pdftotext     string `mapstructure:"pdftotext"`
	Pdftoppm      string `mapstructure:"pdftoppm"`
	Tesseract     string `mapstructure:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang"`
	DPI           int    `mapstructure:"dpi"`
	MaxPages      int    `mapstructure:"max_pages"`
	MinTextLength int    `mapstructure:"min_text_length"`
}

// ProviderConfig describes one extraction backend.
type ProviderConfig struct {
	Name        string        `mapstructure:"name"` // "openai" | "anthropic" | "azure"
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Deployment  string        `mapstructure:"deployment"` // azure only
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Weight      int           `mapstructure:"weight"`
	CostPerCall float64       `mapstructure:"cost_per_call"`
	Disabled    bool          `mapstructure:"disabled"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	MaxCooldown      time.Duration `mapstructure:"max_cooldown"`
}

// OrchestratorConfig tunes the job worker pool and retry policy.
type OrchestratorConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// JobTimeout is the default deadline budget for jobs submitted
	// without an explicit one. It spans all extraction attempts.
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

// ScoringConfig tunes confidence blending and routing thresholds.
type ScoringConfig struct {
	AgreementWeight    float64 `mapstructure:"agreement_weight"`
	RuleWeight         float64 `mapstructure:"rule_weight"`
	FieldThreshold     float64 `mapstructure:"field_threshold"`
	AutomatedThreshold float64 `mapstructure:"automated_threshold"`
}

// LoadConfig reads configuration from an optional file plus EXTRACTD_*
// environment overrides, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("extractd")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/extractd")
	}
	v.SetEnvPrefix("EXTRACTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults + env carry a dev setup.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, WrapError(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, WrapError(err, "unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:extractd.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("documents.root", "./documents")

	v.SetDefault("normalize.tesseract_lang", "ron+eng")
	v.SetDefault("normalize.dpi", 300)
	v.SetDefault("normalize.max_pages", 3)
	v.SetDefault("normalize.min_text_length", 64)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", 60*time.Second)
	v.SetDefault("breaker.max_cooldown", 10*time.Minute)

	v.SetDefault("orchestrator.workers", 4)
	v.SetDefault("orchestrator.queue_size", 256)
	v.SetDefault("orchestrator.job_timeout", 3*time.Minute)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.backoff_base", 2*time.Second)
	v.SetDefault("orchestrator.backoff_cap", 30*time.Second)

	v.SetDefault("scoring.agreement_weight", 0.6)
	v.SetDefault("scoring.rule_weight", 0.4)
	v.SetDefault("scoring.field_threshold", 0.85)
	v.SetDefault("scoring.automated_threshold", 0.85)
}

// Validate checks configuration invariants that cannot default sensibly.
func (c *Config) Validate() error {
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "database.dsn is required for postgres", ErrInvalidInput)
	}
	if len(c.Providers) == 0 {
		return NewAppError("CONFIG_ERROR", "at least one provider must be configured", ErrInvalidInput)
	}
	if c.Scoring.AgreementWeight+c.Scoring.RuleWeight <= 0 {
		return NewAppError("CONFIG_ERROR", "scoring weights must sum to a positive value", ErrInvalidInput)
	}
	return nil
}
