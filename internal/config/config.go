package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	DefaultSystemPrompt = `You are the virtual assistant of a small business answering customers on WhatsApp.
Reply in the customer's language, in a friendly and objective tone, in at most a few short sentences.
Never confirm bookings or payments yourself; collect the details and say a team member will confirm.`

	DefaultFallbackReply = "Sorry, our automated assistant is unavailable right now. A member of our team will get back to you shortly."
)

// Config is the full runtime configuration of the relay
type Config struct {
	Port        string
	Environment string

	// DisableWebhookValidation is honoured only outside production
	DisableWebhookValidation bool
	PublicWebhookURL         string

	LogLevel  string
	LogFormat string

	UseMemoryStore bool
	Database       DatabaseConfig

	Twilio TwilioConfig
	OpenAI OpenAIConfig
	AI     AIConfig

	OutboundTimeout time.Duration
	OperatorAPIKey  string
}

type DatabaseConfig struct {
	Driver                 string // postgres or sqlite
	URL                    string
	User                   string
	Password               string
	Name                   string
	Host                   string
	Port                   int
	InstanceConnectionName string // Cloud SQL unix socket
	SQLitePath             string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetime        time.Duration
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // Format: "whatsapp:+14155238886" or "+14155238886"
}

type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float32
}

type AIConfig struct {
	Timeout       time.Duration
	HistoryLimit  int
	FallbackReply string
}

// LoadDotEnv loads a .env file for local development. On Cloud Run the
// environment is provided by the platform and nothing is loaded.
func LoadDotEnv() {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:                     v.GetString("PORT"),
		Environment:              strings.ToLower(strings.TrimSpace(v.GetString("ENVIRONMENT"))),
		DisableWebhookValidation: v.GetBool("DISABLE_WEBHOOK_VALIDATION"),
		PublicWebhookURL:         v.GetString("PUBLIC_WEBHOOK_URL"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		UseMemoryStore:           v.GetBool("USE_MEMORY_STORE"),
		Database: DatabaseConfig{
			Driver:                 strings.ToLower(v.GetString("DB_DRIVER")),
			URL:                    v.GetString("DATABASE_URL"),
			User:                   v.GetString("DB_USER"),
			Password:               v.GetString("DB_PASS"),
			Name:                   v.GetString("DB_NAME"),
			Host:                   v.GetString("DB_HOST"),
			Port:                   v.GetInt("DB_PORT"),
			InstanceConnectionName: v.GetString("INSTANCE_CONNECTION_NAME"),
			SQLitePath:             v.GetString("SQLITE_PATH"),
			MaxOpenConns:           v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:           v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime:        v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Twilio: TwilioConfig{
			AccountSID:   strings.TrimSpace(v.GetString("TWILIO_ACCOUNT_SID")),
			AuthToken:    strings.TrimSpace(v.GetString("TWILIO_AUTH_TOKEN")),
			WhatsAppFrom: strings.TrimSpace(v.GetString("TWILIO_WHATSAPP_FROM")),
		},
		OpenAI: OpenAIConfig{
			APIKey:       strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
			Model:        v.GetString("OPENAI_MODEL"),
			BaseURL:      v.GetString("OPENAI_BASE_URL"),
			SystemPrompt: v.GetString("OPENAI_SYSTEM_PROMPT"),
			Temperature:  float32(v.GetFloat64("OPENAI_TEMPERATURE")),
		},
		AI: AIConfig{
			Timeout:       v.GetDuration("AI_TIMEOUT"),
			HistoryLimit:  v.GetInt("AI_HISTORY_LIMIT"),
			FallbackReply: v.GetString("AI_FALLBACK_REPLY"),
		},
		OutboundTimeout: v.GetDuration("OUTBOUND_TIMEOUT"),
		OperatorAPIKey:  strings.TrimSpace(v.GetString("OPERATOR_API_KEY")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", EnvProduction)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "whatsapp_relay")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("SQLITE_PATH", "data/relay.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)

	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_SYSTEM_PROMPT", DefaultSystemPrompt)
	v.SetDefault("OPENAI_TEMPERATURE", 0.5)

	// Both calls run inside the webhook request; Twilio gives up after 15s.
	v.SetDefault("AI_TIMEOUT", 8*time.Second)
	v.SetDefault("AI_HISTORY_LIMIT", 10)
	v.SetDefault("AI_FALLBACK_REPLY", DefaultFallbackReply)
	v.SetDefault("OUTBOUND_TIMEOUT", 5*time.Second)
}

func (c *Config) validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("config: ENVIRONMENT must be development, staging or production, got %q", c.Environment)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.AI.HistoryLimit < 0 {
		return fmt.Errorf("config: AI_HISTORY_LIMIT must not be negative")
	}
	if c.AI.Timeout <= 0 || c.OutboundTimeout <= 0 {
		return fmt.Errorf("config: AI_TIMEOUT and OUTBOUND_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.AI.FallbackReply) == "" {
		return fmt.Errorf("config: AI_FALLBACK_REPLY must not be blank")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// WebhookBypass reports whether webhook signature validation is skipped.
// Never true in production.
func (c *Config) WebhookBypass() bool {
	if c.IsProduction() {
		return false
	}
	return c.IsDevelopment() || c.DisableWebhookValidation
}

// TwilioConfigured reports whether outbound sending can be enabled
func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.WhatsAppFrom != ""
}
