package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every runtime knob, populated from the environment.
type Config struct {
	// OpenRouter settings used by the bundled classification endpoint.
	OpenRouterAPIKey   string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel    string `env:"OPENROUTER_MODEL" envDefault:"openai/gpt-4o-mini"`
	OpenRouterBaseURL  string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER" envDefault:"http://localhost:5000"`

	// Server settings.
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":5000"`
	MaxImageSize   int64         `env:"MAX_IMAGE_SIZE" envDefault:"10485760"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	JWTSecret      string        `env:"JWT_SECRET"`
	Debug          bool          `env:"DEBUG"`

	// Client settings.
	ClassifyEndpoint string        `env:"CLASSIFY_ENDPOINT" envDefault:"http://localhost:5000/classify"`
	ErrorBannerDelay time.Duration `env:"ERROR_BANNER_DELAY" envDefault:"6s"`

	// URLExtensionFix enables the ad hoc ".jpg" appending heuristic for
	// extensionless image URLs.
	URLExtensionFix bool `env:"URL_EXTENSION_FIX" envDefault:"true"`

	// Storage settings.
	DataPath  string `env:"DATA_PATH" envDefault:"data/hotdog.db"`
	RedisAddr string `env:"REDIS_ADDR"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
