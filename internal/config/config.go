package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"enchant-server/shared/utils"
)

// Config holds the API server's configuration. Secrets (DB password, JWT
// secret) come from Docker secret files with an env fallback for local runs
// and never from plain envconfig tags.
type Config struct {
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`

	// PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBPassword string // secret, no envconfig tag

	// RabbitMQ
	RabbitMQURL     string `envconfig:"RABBITMQ_URL" required:"true"`
	TaskQueueName   string `envconfig:"ENHANCEMENT_IMAGE_TASK_QUEUE" default:"enhancement_image_tasks"`
	ResultQueueName string `envconfig:"ENHANCEMENT_IMAGE_RESULT_QUEUE" default:"enhancement_image_results"`

	// Redis (run snapshots and realtime updates)
	RedisAddr     string `envconfig:"REDIS_ADDR" required:"true"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Text-generation backend
	AIProvider string        `envconfig:"AI_PROVIDER" default:"openrouter"`
	AIBaseURL  string        `envconfig:"AI_BASE_URL" default:""`
	AIModel    string        `envconfig:"AI_MODEL" required:"true"`
	AITimeout  time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIAPIKey   string        // secret, no envconfig tag

	// Orchestrator polling loop
	RunPollInterval    time.Duration `envconfig:"RUN_POLL_INTERVAL" default:"2s"`
	RunMaxPollAttempts int           `envconfig:"RUN_MAX_POLL_ATTEMPTS" default:"90"`
	WordsPerSceneHint  int           `envconfig:"WORDS_PER_SCENE_HINT" default:"0"`

	// JWT verification
	JWTSecret string // secret, no envconfig tag
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig reads configuration from the environment and secret files.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var err error
	cfg.DBPassword, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret, err = utils.ReadSecretOrEnv("jwt_secret", "JWT_SECRET")
	if err != nil {
		return nil, err
	}
	// Local Ollama runs without an API key.
	cfg.AIAPIKey, _ = utils.ReadSecretOrEnv("ai_api_key", "AI_API_KEY")

	return &cfg, nil
}
