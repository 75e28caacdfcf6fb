package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StoragePostgres  = "postgres"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "TTRPG_"

type Config struct {
	Mode Mode `env:"MODE" envDefault:"local"`

	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	GCPProjectID string `env:"GCP_PROJECT"`
	GCPLocation  string `env:"GCP_LOCATION" envDefault:"us-central1"`

	Provider      string `env:"LLM_PROVIDER" envDefault:"gemini"`
	ModelName     string `env:"MODEL_NAME" envDefault:"gemini-2.5-flash"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	// UseMockLLM defaults to true in local mode.
	UseMockLLM *bool `env:"USE_MOCK_LLM"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	PostgresDSN    string `env:"POSTGRES_DSN"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	SessionCacheTTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"10m"`

	JWTSecret       string        `env:"JWT_SECRET" envDefault:"local-development-secret"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"ttrpg-gm"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	ConsulAddr    string `env:"CONSUL_ADDR"`
	ServiceName   string `env:"SERVICE_NAME" envDefault:"ttrpg-gm"`
	AdvertiseHost string `env:"ADVERTISE_HOST" envDefault:"127.0.0.1"`

	CatalogFile string `env:"CATALOG_FILE"`
}

// MockLLM reports whether the scripted generator should be used.
func (c *Config) MockLLM() bool {
	if c.UseMockLLM != nil {
		return *c.UseMockLLM
	}
	return c.Mode == ModeLocal || c.Provider == ProviderMock
}

// Load reads all env vars and builds the config
func Load() (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Mode != ModeGCP {
		cfg.Mode = ModeLocal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot express with tags.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("%sGCP_PROJECT must be set for firestore storage", EnvPrefix)
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%sPOSTGRES_DSN must be set for postgres storage", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}

	// Minimal validation in GCP mode
	if c.Mode == ModeGCP {
		if c.GCPProjectID == "" && c.GeminiAPIKey == "" && c.Provider == ProviderGemini && !c.MockLLM() {
			return fmt.Errorf("%sGCP_PROJECT or %sGEMINI_API_KEY must be set in gcp mode", EnvPrefix, EnvPrefix)
		}
		if c.JWTSecret == "local-development-secret" {
			return fmt.Errorf("%sJWT_SECRET must be set in gcp mode", EnvPrefix)
		}
	}
	if c.Provider == ProviderOpenAI && !c.MockLLM() && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%sOPENAI_API_KEY must be set for the openai provider", EnvPrefix)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}
