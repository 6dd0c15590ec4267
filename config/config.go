package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service names accepted by LoadConfig.
const (
	ServiceHeart = "heart"
	ServiceSpend = "spend"
)

// Document store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Service    string
	ServerPort int
	JWTSecret  string
	TokenTTL   time.Duration
	DocStore   DocStoreConfig
	Database   DatabaseConfig
	LLM        LLMConfig
	Categories CategoryConfig
	Storage    StorageConfig
	MQ         MQConfig
}

type DocStoreConfig struct {
	Driver   string
	MongoURL string
	DBName   string
}

// DatabaseConfig holds the Postgres connection used by the postgres document
// store driver and the migrate command.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

type CategoryConfig struct {
	FuzzyMatch bool
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	Backend  string
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

// serviceDefaults are the per-service values that differ between the two APIs.
type serviceDefaults struct {
	dbName     string
	tokenTTL   time.Duration
	provider   string
	model      string
	fuzzyMatch bool
}

var defaults = map[string]serviceDefaults{
	ServiceHeart: {
		dbName:   "heart_db",
		tokenTTL: 7 * 24 * time.Hour,
		provider: "openai",
		model:    "gpt-5",
	},
	ServiceSpend: {
		dbName:     "spend_db",
		tokenTTL:   24 * time.Hour,
		provider:   "anthropic",
		model:      "claude-3-7-sonnet-20250219",
		fuzzyMatch: true,
	},
}

func LoadConfig(service string) Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	def, ok := defaults[service]
	if !ok {
		def = defaults[ServiceHeart]
	}

	tokenTTL := def.tokenTTL
	if hours := getEnvInt("JWT_EXPIRATION_HOURS", 0); hours > 0 {
		tokenTTL = time.Duration(hours) * time.Hour
	}

	apiKey := getEnv("LLM_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("EMERGENT_LLM_KEY", "")
	}

	dbConfig := DatabaseConfig{
		URL:      getEnv("DATABASE_URL", ""),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "healthspend"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", def.dbName),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	return Config{
		Service:    service,
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:   tokenTTL,
		DocStore: DocStoreConfig{
			Driver:   strings.ToLower(getEnv("DOCSTORE_DRIVER", DriverMongo)),
			MongoURL: getEnv("MONGO_URL", ""),
			DBName:   getEnv("DB_NAME", def.dbName),
		},
		Database: dbConfig,
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", def.provider)),
			Model:    getEnv("LLM_MODEL", def.model),
			APIKey:   apiKey,
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Timeout:  getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Categories: CategoryConfig{
			FuzzyMatch: getEnvBool("CATEGORY_FUZZY_MATCH", def.fuzzyMatch),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "reports"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		MQ: MQConfig{
			Backend: strings.ToLower(getEnv("MQ_BACKEND", "")),
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
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
