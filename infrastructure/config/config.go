package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `validate:"required"`
	Environment   string `validate:"required,oneof=development staging production"`

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	EventBusName  string

	// WebSocket broadcast configuration. When WebSocketEndpoint is set the
	// authority fans out through API Gateway management connections instead
	// of locally held sockets.
	WebSocketEndpoint string

	// Logging
	LogLevel string `validate:"required,oneof=debug info warn error"`

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Collaboration tunables
	AutosaveDebounce    time.Duration `validate:"min=0"`
	MinSnapshotInterval time.Duration `validate:"min=0"`
	StatusResetDelay    time.Duration `validate:"min=0"`
	ReannounceCooldown  time.Duration `validate:"min=0"`
	JoinTokenTTL        time.Duration `validate:"min=0"`
	AutosaveDefault     bool

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("DYNAMODB_TABLE", "mindmesh-documents"),
		EventBusName:  getEnv("EVENT_BUS_NAME", ""),

		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "mindmesh"),

		AutosaveDebounce:    getEnvDuration("AUTOSAVE_DEBOUNCE", 1500*time.Millisecond),
		MinSnapshotInterval: getEnvDuration("MIN_SNAPSHOT_INTERVAL", 500*time.Millisecond),
		StatusResetDelay:    getEnvDuration("STATUS_RESET_DELAY", 2*time.Second),
		ReannounceCooldown:  getEnvDuration("REANNOUNCE_COOLDOWN", 1500*time.Millisecond),
		JoinTokenTTL:        getEnvDuration("JOIN_TOKEN_TTL", 12*time.Hour),
		AutosaveDefault:     getEnvBool("AUTOSAVE_DEFAULT", true),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration gets a duration environment variable with a default value.
// Accepts Go duration strings ("1.5s") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
