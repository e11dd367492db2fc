package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowstack-agency/leadflow/internal/cost"
	"github.com/flowstack-agency/leadflow/internal/gateway"
	"github.com/flowstack-agency/leadflow/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Email     EmailConfig     `yaml:"email" mapstructure:"email"`
	Followups FollowupsConfig `yaml:"followups" mapstructure:"followups"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ModelConfig holds model provider settings.
type ModelConfig struct {
	Key     string         `yaml:"key" mapstructure:"key"`
	BaseURL string         `yaml:"base_url" mapstructure:"base_url"`
	Models  gateway.Models `yaml:"models" mapstructure:"models"`
}

// EmailConfig holds email provider settings.
type EmailConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	From    string `yaml:"from" mapstructure:"from"`
}

// FollowupsConfig tunes the follow-up executor.
type FollowupsConfig struct {
	Limit             int    `yaml:"limit" mapstructure:"limit"`
	ItemDelayMS       int    `yaml:"item_delay_ms" mapstructure:"item_delay_ms"`
	ItemTimeoutSecs   int    `yaml:"item_timeout_secs" mapstructure:"item_timeout_secs"`
	StaleClaimMinutes int    `yaml:"stale_claim_minutes" mapstructure:"stale_claim_minutes"`
	SequencesFile     string `yaml:"sequences_file" mapstructure:"sequences_file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("model.base_url", "https://api.openai.com/v1")
	v.SetDefault("model.models.quality", "gpt-4o")
	v.SetDefault("model.models.cost", "gpt-4o-mini")
	v.SetDefault("email.base_url", "https://api.resend.com")
	v.SetDefault("email.from", "FlowStack <hello@flowstack.agency>")
	v.SetDefault("followups.limit", 10)
	v.SetDefault("followups.item_delay_ms", 500)
	v.SetDefault("followups.item_timeout_secs", 30)
	v.SetDefault("followups.stale_claim_minutes", 30)
	v.SetDefault("pricing.default.input", 2.50)
	v.SetDefault("pricing.default.output", 10.00)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Pricing.Models) == 0 {
		cfg.Pricing.Models = cost.DefaultRates().Models
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode. Modes map to
// top-level commands: serve, followups, migrate, interactions.
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(value, name string) {
		if value == "" {
			problems = append(problems, name+" is required")
		}
	}

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
			need(c.Store.DatabaseURL, "store.database_url")
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		need(c.Model.Key, "model.key")
		need(c.Email.Key, "email.key")
		need(c.Email.From, "email.from")
		requireStore()
	case "followups":
		need(c.Model.Key, "model.key")
		need(c.Email.Key, "email.key")
		need(c.Email.From, "email.from")
		if c.Followups.Limit < 1 || c.Followups.Limit > 100 {
			problems = append(problems, "followups.limit must be between 1 and 100")
		}
		requireStore()
	case "migrate", "interactions":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
