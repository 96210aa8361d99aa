package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL       string `env:"OPENAI_BASE_URL" envDefault:""`
	ModelName           string `env:"MODEL_NAME" envDefault:"gpt-4o-mini"`
	ModelTimeoutSeconds int    `env:"MODEL_TIMEOUT_SECONDS" envDefault:"30"`
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS" envDefault:"24"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.ModelTimeoutSeconds <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT_SECONDS must be positive")
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if !strings.HasPrefix(c.OpenAIAPIKey, "sk-") {
		log.Warn().Msg("OPENAI_API_KEY does not start with 'sk-': key may be invalid")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
