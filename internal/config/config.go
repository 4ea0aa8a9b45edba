package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Cookie   CookieConfig
}

type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	AllowedOrigin string
	LogLevel      string
}

const (
	UserStoreDynamoDB = "dynamodb"
	UserStoreMemory   = "memory"
)

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
	// UserStore selects the user repository; "memory" keeps users in
	// process for local development.
	UserStore string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// CookieConfig controls the refresh_token cookie issued on sign-in and sign-up.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

// Load reads the server configuration from the environment. A .env file in
// the working directory is applied first when present.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			ReadTimeout:   getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "LifeFlowTable"),
			UserStore: getEnv("USER_STORE", UserStoreDynamoDB),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Cookie: CookieConfig{
			Name:   getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
			Path:   getEnv("REFRESH_COOKIE_PATH", "/api/auth"),
			Secure: getEnvAsBool("COOKIE_SECURE", false),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.DynamoDB.UserStore != UserStoreDynamoDB && cfg.DynamoDB.UserStore != UserStoreMemory {
		return nil, fmt.Errorf("USER_STORE must be %q or %q", UserStoreDynamoDB, UserStoreMemory)
	}

	return cfg, nil
}

func loadDotEnv() {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
