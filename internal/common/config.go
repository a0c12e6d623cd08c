package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/cbam-tracker/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Tax      TaxConfig      `mapstructure:"tax"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourcesConfig points at the two published tables the service reads.
type SourcesConfig struct {
	ReferenceTable string        `mapstructure:"reference_table"`
	ReferenceTTL   time.Duration `mapstructure:"reference_ttl"`
	UserTable      string        `mapstructure:"user_table"`
	UserTTL        time.Duration `mapstructure:"user_ttl"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	RulesFile      string        `mapstructure:"rules_file"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxImageMB  int           `mapstructure:"max_image_mb"`
}

// DatabaseConfig holds the optional history store configuration. An empty DSN
// disables history.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// TaxConfig holds calculation defaults used when the reference table omits them.
type TaxConfig struct {
	CarbonPrice         float64 `mapstructure:"carbon_price"`
	DefaultExchangeRate float64 `mapstructure:"default_exchange_rate"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from defaults, an optional file named by
// CBAM_CONFIG, and the environment. Env overrides use the CBAM_ prefix; the
// provider-specific variables keep their conventional names.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.session_ttl", 12*time.Hour)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("sources.reference_table", "")
	v.SetDefault("sources.reference_ttl", 300*time.Second)
	v.SetDefault("sources.user_table", "")
	v.SetDefault("sources.user_ttl", 60*time.Second)
	v.SetDefault("sources.fetch_timeout", 15*time.Second)
	v.SetDefault("sources.rules_file", "")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_image_mb", constants.MaxImageMBDefault)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)

	v.SetDefault("tax.carbon_price", constants.DefaultCarbonPrice)
	v.SetDefault("tax.default_exchange_rate", constants.DefaultExchangeRate)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("yaml")
	if cfgPath := os.Getenv("CBAM_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
	}

	v.SetEnvPrefix("CBAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// conventional names shared with the other services
	_ = v.BindEnv("llm.api_key", "CBAM_LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.model", "CBAM_LLM_MODEL", "OPENAI_MODEL")
	_ = v.BindEnv("database.dsn", "CBAM_DATABASE_DSN", "DB_URL")
	_ = v.BindEnv("server.grpc_addr", "CBAM_SERVER_GRPC_ADDR", "GRPC_ADDR")
	_ = v.BindEnv("server.http_addr", "CBAM_SERVER_HTTP_ADDR", "PORT")
	_ = v.BindEnv("log.level", "CBAM_LOG_LEVEL", "LOG_LEVEL")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Server.HTTPAddr != "" && !strings.Contains(c.Server.HTTPAddr, ":") {
		c.Server.HTTPAddr = ":" + c.Server.HTTPAddr
	}
	return &c, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "server.http_addr is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "an LLM API key is required (OPENAI_API_KEY or GEMINI_API_KEY)", ErrInvalidInput)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "gemini":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.Sources.UserTable == "" {
		return NewAppError("CONFIG_ERROR", "sources.user_table is required", ErrInvalidInput)
	}
	if c.Tax.CarbonPrice < 0 || c.Tax.DefaultExchangeRate <= 0 {
		return NewAppError("CONFIG_ERROR", "tax defaults must be positive", ErrInvalidInput)
	}
	return nil
}
