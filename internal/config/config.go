package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	APIBaseURL    string
	AdminPort     string
	StateBackend  string // file or postgres
	StateFile     string
	StateSecret   string
	DatabaseURL   string
	RabbitMQURL   string
	AgentUsername string
	AgentPassword string
	Environment   string // development, staging, production
}

// Load loads configuration from environment variables and validates for production
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8080"),
		AdminPort:     getEnv("ADMIN_PORT", "9090"),
		StateBackend:  getEnv("STATE_BACKEND", "file"),
		StateFile:     getEnv("STATE_FILE", "agent-state.json"),
		StateSecret:   getEnv("STATE_SECRET", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		AgentUsername: getEnv("AGENT_USERNAME", ""),
		AgentPassword: getEnv("AGENT_PASSWORD", ""),
		Environment:   getEnv("ENVIRONMENT", "development"),
	}

	// Validate production configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	switch c.StateBackend {
	case "file", "postgres":
	default:
		return fmt.Errorf("STATE_BACKEND must be file or postgres (got %q)", c.StateBackend)
	}

	if c.StateBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when STATE_BACKEND is postgres")
	}

	if c.IsProduction() {
		if c.StateSecret == "" || c.StateSecret == "change-this-in-production" {
			return fmt.Errorf("STATE_SECRET must be set to a strong random value in production")
		}

		if len(c.StateSecret) < 32 {
			return fmt.Errorf("STATE_SECRET must be at least 32 characters in production (got %d)", len(c.StateSecret))
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
