package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

type Config struct {
	ServerPort  string
	Environment string
	LogLevel    string

	StoreDriver             string
	FirebaseProject         string
	FirebaseCredentialsJSON string
	FirebaseCredentialsPath string
	StorageBucket           string

	JWTSecret string
	JWTExpiry int64

	ChatCreateTimeout            time.Duration
	ChatLoadTimeout              time.Duration
	NotificationPollInterval     time.Duration
	NotificationFetchConcurrency int

	UploadMaxBytes int64

	JaaSAppID          string
	JaaSKeyID          string
	JaaSPrivateKeyPath string
	JaaSDomain         string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StoreDriver:             getEnv("STORE_DRIVER", StoreDriverMemory),
		FirebaseProject:         getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StorageBucket:           getEnv("STORAGE_BUCKET", ""),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiry: getEnvAsInt64("JWT_EXPIRY", 24*60*60), // 24 hours

		ChatCreateTimeout:            getEnvAsDuration("CHAT_CREATE_TIMEOUT", 10*time.Second),
		ChatLoadTimeout:              getEnvAsDuration("CHAT_LOAD_TIMEOUT", 8*time.Second),
		NotificationPollInterval:     getEnvAsDuration("NOTIFICATION_POLL_INTERVAL", 5*time.Second),
		NotificationFetchConcurrency: int(getEnvAsInt64("NOTIFICATION_FETCH_CONCURRENCY", 8)),

		UploadMaxBytes: getEnvAsInt64("UPLOAD_MAX_BYTES", 10*1024*1024),

		JaaSAppID:          getEnv("JAAS_APP_ID", ""),
		JaaSKeyID:          getEnv("JAAS_KEY_ID", ""),
		JaaSPrivateKeyPath: getEnv("JAAS_PRIVATE_KEY_PATH", ""),
		JaaSDomain:         getEnv("JAAS_DOMAIN", "8x8.vc"),
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
