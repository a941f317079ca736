package imagegen

import (
	"log"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"enchant-server/shared/logger"
)

// Config holds the image worker's configuration.
type Config struct {
	AppEnv            string `env:"APP_ENV" env-default:"development"`
	Logger            logger.Config
	RabbitMQ          RabbitMQConfig
	ImageServer       ImageServerConfig
	PushGatewayURL    string `env:"PUSHGATEWAY_URL" env-default:""`
	PromptStyleSuffix string `env:"IMAGE_PROMPT_STYLE_SUFFIX" env-default:", detailed illustration in a consistent painterly style, soft natural lighting, cohesive color palette"`
	ImageSavePath     string `env:"IMAGE_SAVE_PATH" env-required:"true"`
	ImagePublicURL    string `env:"IMAGE_PUBLIC_BASE_URL" env-required:"true"`
}

// RabbitMQConfig configures the task and result queues.
type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL" env-required:"true"`
	ConsumerName    string `env:"RABBITMQ_CONSUMER_NAME" env-default:"enhancement_image_worker"`
	TaskQueueName   string `env:"ENHANCEMENT_IMAGE_TASK_QUEUE" env-default:"enhancement_image_tasks"`
	ResultQueueName string `env:"ENHANCEMENT_IMAGE_RESULT_QUEUE" env-default:"enhancement_image_results"`
}

// ImageServerConfig points at the local diffusion server.
type ImageServerConfig struct {
	BaseURL string `env:"IMAGE_SERVER_BASE_URL" env-required:"true"`
	Timeout int    `env:"IMAGE_SERVER_TIMEOUT_SEC" env-default:"120"`
}

// LoadConfig reads configuration from the environment and an optional .env
// file.
func LoadConfig() *Config {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	return &cfg
}
