package papergen

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	OpenAIAPIKey   string        `mapstructure:"OPENAI_API_KEY"`
	ChatModel      string        `mapstructure:"CHAT_MODEL"`
	EmbeddingModel string        `mapstructure:"EMBEDDING_MODEL"`
	PineconeAPIKey string        `mapstructure:"PINECONE_API_KEY"`
	PineconeHost   string        `mapstructure:"PINECONE_HOST"`
	ServerPort     string        `mapstructure:"SERVER_PORT"`
	SessionKey     string        `mapstructure:"SESSION_KEY"`
	DBPath         string        `mapstructure:"DB_PATH"`
	LogDir         string        `mapstructure:"LOG_DIR"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`
}

// LoadConfig loads configuration from config.yaml and environment variables.
// LLM_TIMEOUT bounds each external capability call; 0 disables the bound.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("CHAT_MODEL", "gpt-4o")
	viper.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	viper.SetDefault("SERVER_PORT", ":8190")
	viper.SetDefault("SESSION_KEY", "change-me-in-production")
	viper.SetDefault("DB_PATH", "./papers.db")
	viper.SetDefault("LOG_DIR", "log")
	viper.SetDefault("LLM_TIMEOUT", "120s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("config.yaml not found, using environment variables and defaults")
		} else {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	// Override with environment variables (e.g., PAPERGEN_CHAT_MODEL)
	viper.SetEnvPrefix("PAPERGEN")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// The two provider keys also follow their conventional unprefixed names.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.PineconeAPIKey == "" {
		cfg.PineconeAPIKey = os.Getenv("PINECONE_API_KEY")
	}

	return &cfg, nil
}
