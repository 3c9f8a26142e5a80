package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server      ServerConfig      `envconfig:"SERVER"`
	Database    DatabaseConfig    `envconfig:"DB"`
	JWT         JWTConfig         `envconfig:"JWT"`
	Supabase    SupabaseConfig    `envconfig:"SUPABASE"`
	Stripe      StripeConfig      `envconfig:"STRIPE"`
	LLM         LLMConfig         `envconfig:"LLM"`
	RabbitMQ    RabbitMQConfig    `envconfig:"RABBIT"`
	Cloudinary  CloudinaryConfig  `envconfig:"CLOUDINARY"`
	Telemetry   TelemetryConfig   `envconfig:"OTEL"`
	Marketplace MarketplaceConfig `envconfig:"MARKETPLACE"`
}

type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	GinMode         string        `envconfig:"GIN_MODE" default:"debug"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
}

type DatabaseConfig struct {
	// Driver is postgres in production; sqlite is for local development
	Driver          string        `envconfig:"DRIVER" default:"postgres"`
	URL             string        `envconfig:"URL"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"1h"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"warn"`
}

type JWTConfig struct {
	Secret      string `envconfig:"SECRET" required:"true"`
	ExpiryHours int    `envconfig:"EXPIRY_HOURS" default:"24"`
	RefreshDays int    `envconfig:"REFRESH_DAYS" default:"30"`
	Issuer      string `envconfig:"ISSUER" default:"choraid-server"`
}

type SupabaseConfig struct {
	URL string `envconfig:"URL"`
	Key string `envconfig:"KEY"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"SECRET_KEY"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	Currency      string `envconfig:"CURRENCY" default:"usd"`
}

type LLMConfig struct {
	// Provider is one of gemini, ollama or none
	Provider      string        `envconfig:"PROVIDER" default:"none"`
	Model         string        `envconfig:"MODEL"`
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	OllamaURL     string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxCandidates int           `envconfig:"MAX_CANDIDATES" default:"10"`
}

type RabbitMQConfig struct {
	URL      string `envconfig:"URL"`
	Exchange string `envconfig:"EXCHANGE" default:"choraid.events"`
}

type CloudinaryConfig struct {
	URL    string `envconfig:"URL"`
	Folder string `envconfig:"FOLDER" default:"choraid"`
}

type TelemetryConfig struct {
	Endpoint    string `envconfig:"ENDPOINT"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"choraid-server"`
	Environment string `envconfig:"ENV" default:"dev"`
}

type MarketplaceConfig struct {
	CommissionRate     float64       `envconfig:"COMMISSION_RATE" default:"0.10"`
	JobTTL             time.Duration `envconfig:"JOB_TTL" default:"720h"`
	ExpirationInterval time.Duration `envconfig:"EXPIRATION_INTERVAL" default:"1m"`
}

var AppConfig *Config

// Load reads .env (when present) and the process environment into AppConfig
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = &cfg
	return &cfg, nil
}

// Validate checks cross-field rules envconfig tags cannot express
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DB_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.Database.URL == "" {
			c.Database.URL = "file:choraid.db?_foreign_keys=on"
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Marketplace.CommissionRate < 0 || c.Marketplace.CommissionRate >= 1 {
		return fmt.Errorf("MARKETPLACE_COMMISSION_RATE must be in [0, 1), got %v", c.Marketplace.CommissionRate)
	}

	switch c.LLM.Provider {
	case "none", "":
		c.LLM.Provider = "none"
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("LLM_GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
		if c.LLM.Model == "" {
			c.LLM.Model = "gemini-1.5-flash"
		}
	case "ollama":
		if c.LLM.Model == "" {
			c.LLM.Model = "llama3.1"
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}

	return nil
}
