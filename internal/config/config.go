package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the full server configuration. Secrets (AI key, DB and
// redis passwords) are read from Docker secret files with an env-var
// fallback for local runs and never carry an envconfig tag.
type Config struct {
	// HTTP
	Port           string   `envconfig:"PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// Logging
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// AI providers
	AIProvider       string        `envconfig:"AI_PROVIDER" default:"openai"`
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel          string        `envconfig:"AI_MODEL" default:"deepseek/deepseek-chat"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	OllamaHost       string        `envconfig:"OLLAMA_HOST" default:""`
	OllamaModel      string        `envconfig:"OLLAMA_MODEL" default:"llama3"`
	AIAPIKey         string

	// Executor
	MaxConcurrentTasks int `envconfig:"MAX_CONCURRENT_TASKS" default:"3"`
	ResultsCacheSize   int `envconfig:"RESULTS_CACHE_SIZE" default:"256"`

	// Context assembly
	ContextTokenBudget int           `envconfig:"CONTEXT_TOKEN_BUDGET" default:"2000"`
	ContextCacheTTL    time.Duration `envconfig:"CONTEXT_CACHE_TTL" default:"5m"`

	// PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"comic_db"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword    string

	// Redis (context cache). Empty address disables caching.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig loads configuration from environment variables and secret files.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.AIAPIKey = readSecret("ai_api_key", "AI_API_KEY")
	if cfg.AIAPIKey == "" && cfg.AIProvider == "openai" {
		return nil, fmt.Errorf("ai_api_key secret is required for provider %q", cfg.AIProvider)
	}

	cfg.DBPassword = readSecret("db_password", "DB_PASSWORD")
	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("db_password secret is required")
	}

	cfg.RedisPassword = readSecret("redis_password", "REDIS_PASSWORD")

	return &cfg, nil
}

// readSecret reads a Docker secret file, falling back to the given
// environment variable. Returns "" when neither is set.
func readSecret(secretName, envName string) string {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	if secretBytes, err := os.ReadFile(filePath); err == nil {
		if secret := strings.TrimSpace(string(secretBytes)); secret != "" {
			return secret
		}
	}
	return strings.TrimSpace(os.Getenv(envName))
}
