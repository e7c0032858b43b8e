package authorizer

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is a configuration for the authorizer application
type Config struct {
	HTTPAddr    string
	ISO8583Addr string
	// RepoBackend is "pg" or "mem". mem needs AllowMemBackend.
	RepoBackend     string
	AllowMemBackend bool
	DatabaseDSN     string
	// RabbitMQURL is optional; events are only logged when it is empty.
	RabbitMQURL    string
	EventsExchange string
	// BasicAuthUser and BasicAuthPassword guard the card and transaction routes.
	BasicAuthUser     string
	BasicAuthPassword string
	Retry             RetryPolicy
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:          "localhost:8080",
		ISO8583Addr:       "localhost:8583",
		RepoBackend:       "pg",
		EventsExchange:    "card_events",
		BasicAuthUser:     "admin",
		BasicAuthPassword: "admin123",
		Retry:             DefaultRetryPolicy(),
	}
}

// LoadConfig reads configuration from environment variables. A .env file,
// if any, is expected to be loaded into the environment by the caller.
func LoadConfig() (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", def.HTTPAddr)
	v.SetDefault("ISO8583_ADDR", def.ISO8583Addr)
	v.SetDefault("REPO_BACKEND", def.RepoBackend)
	v.SetDefault("ALLOW_MEM_BACKEND", false)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("EVENTS_EXCHANGE", def.EventsExchange)
	v.SetDefault("BASIC_AUTH_USER", def.BasicAuthUser)
	v.SetDefault("BASIC_AUTH_PASSWORD", def.BasicAuthPassword)
	v.SetDefault("RETRY_MAX_ATTEMPTS", def.Retry.MaxAttempts)
	v.SetDefault("RETRY_BASE_DELAY", def.Retry.BaseDelay)
	v.SetDefault("RETRY_MULTIPLIER", def.Retry.Multiplier)

	cfg := &Config{
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		ISO8583Addr:       v.GetString("ISO8583_ADDR"),
		RepoBackend:       strings.ToLower(v.GetString("REPO_BACKEND")),
		AllowMemBackend:   v.GetBool("ALLOW_MEM_BACKEND"),
		DatabaseDSN:       v.GetString("DB_DSN"),
		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		EventsExchange:    v.GetString("EVENTS_EXCHANGE"),
		BasicAuthUser:     v.GetString("BASIC_AUTH_USER"),
		BasicAuthPassword: v.GetString("BASIC_AUTH_PASSWORD"),
		Retry: RetryPolicy{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
			Multiplier:  v.GetFloat64("RETRY_MULTIPLIER"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.RepoBackend {
	case "pg":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
	case "mem":
		if !c.AllowMemBackend {
			return fmt.Errorf("mem repository is disabled; set ALLOW_MEM_BACKEND=true to use it")
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", c.RepoBackend)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry policy: %w", err)
	}
	return nil
}
