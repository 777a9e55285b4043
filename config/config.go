package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the errander service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Mail      MailConfig      `mapstructure:"mail"`
	Providers ProvidersConfig `mapstructure:"providers"`
	News      NewsConfig      `mapstructure:"news"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains process-wide settings.
type GeneralConfig struct {
	Listen        string `mapstructure:"listen"`
	Debug         bool   `mapstructure:"debug"`
	LogLevel      string `mapstructure:"log_level"`
	DataDir       string `mapstructure:"data_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	// OwnAddress is the service's outbound address. The planner excludes it
	// when picking a notification target out of free text.
	OwnAddress string `mapstructure:"own_address"`
}

// MailConfig groups the outbound and inbound mail transports. Either side
// may be left unset; the matching capability is then unavailable.
type MailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
	POP3 POP3Config `mapstructure:"pop3"`
}

// SMTPConfig configures the outbound mail sender.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether the sender can be constructed.
func (c SMTPConfig) Configured() bool { return c.Host != "" && c.From != "" }

// POP3Config configures the inbound mailbox reader.
type POP3Config struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether the reader can be constructed.
func (c POP3Config) Configured() bool { return c.Host != "" && c.Username != "" }

// ProvidersConfig lists external model providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the planner oracle and image generation.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	ImageModel      string        `mapstructure:"image_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// NewsConfig configures the topical digest source.
type NewsConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

// StorageConfig groups optional durable backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig configures the durable run repository. When unset the
// service keeps run records in memory only.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (c PostgresConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Host == "" || c.DBName == "" {
		return "", errors.New("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, port, c.DBName, ssl), nil
}

// Configured reports whether a DSN can be built.
func (c PostgresConfig) Configured() bool { return c.URL != "" || (c.Host != "" && c.DBName != "") }

// RedisConfig configures the sweep lock. Optional; without it concurrent
// sweeps on the same job store race (documented limitation).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Configured reports whether the lock client can be constructed.
func (c RedisConfig) Configured() bool { return c.Host != "" && c.Port != "" }

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string { return c.Host + ":" + c.Port }

// LoadConfig reads configuration from a file (json) plus ERRANDER_* env
// overrides. A missing config file is tolerated because every external
// capability is optional; env alone can configure a process.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("general.listen", ":8080")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.data_dir", "./data")
	v.SetDefault("general.public_base_url", "")
	v.SetDefault("mail.smtp.port", "587")
	v.SetDefault("mail.smtp.timeout", 30*time.Second)
	v.SetDefault("mail.pop3.port", "995")
	v.SetDefault("mail.pop3.use_tls", true)
	v.SetDefault("mail.pop3.timeout", 30*time.Second)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com")
	v.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	v.SetDefault("providers.openai.image_model", "gpt-image-1")
	v.SetDefault("providers.openai.temperature", 0.2)
	v.SetDefault("providers.openai.max_tokens", 1200)
	v.SetDefault("providers.openai.timeout", 60*time.Second)
	v.SetDefault("news.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("news.max_results", 10)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ERRANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
