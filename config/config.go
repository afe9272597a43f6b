package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	MQBackendNone     = "none"
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"
)

type Config struct {
	ServerPort     int
	Env            string
	LogLevel       string
	AllowedOrigins []string
	Database       DatabaseConfig
	Auth           AuthConfig
	Redis          RedisConfig
	MQ             MQConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	// JWTSecret signs session tokens. Required.
	JWTSecret string
	// TokenTTL is the session lifetime; the cookie max-age follows it.
	TokenTTL time.Duration
	// HashConcurrency bounds the number of bcrypt operations running at once.
	HashConcurrency int
}

// RedisConfig is optional. An empty Addr disables the token revocation set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	// unset means production; development must be asked for explicitly
	env := strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", EnvProduction)))
	if env == "" {
		env = EnvProduction
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "teamtasks"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "teamtasks_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:       strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:        24 * time.Hour,
		HashConcurrency: getEnvInt("HASH_CONCURRENCY", runtime.GOMAXPROCS(0)),
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", MQBackendNone)),
		Channel: getEnv("MQ_CHANNEL", "task-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort:     getEnvInt("SERVER_PORT", 8080),
		Env:            env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
		Database:       dbConfig,
		Auth:           authConfig,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQ: mqConfig,
	}
}

// IsDevelopment reports whether the process runs in a local development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.Auth.HashConcurrency < 1 {
		return fmt.Errorf("HASH_CONCURRENCY must be at least 1, got %d", c.Auth.HashConcurrency)
	}
	switch c.MQ.Backend {
	case MQBackendNone, "":
	case MQBackendRabbitMQ:
		if c.MQ.RabbitMQ.URL == "" {
			return errors.New("RABBITMQ_URL is required for the rabbitmq backend")
		}
	case MQBackendPubSub:
		if c.MQ.PubSub.ProjectID == "" {
			return errors.New("PUBSUB_PROJECT_ID is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
