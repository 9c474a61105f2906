package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	// StoreDSN selects the letter store: pebble://<dir>, dynamo://, memory://
	StoreDSN string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string // empty keeps attachments in memory
	SNSRegion      string
	SNSTopicARN    string // empty logs fired notifications instead of publishing

	ReconcileInterval time.Duration

	AppLockEnabled      bool
	DeviceAuthAvailable bool

	NotificationPermission   string // granted | denied | undetermined
	GrantPermissionOnRequest bool

	GrantSecret string
	GrantTTL    time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Letters  string
	Settings string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		StoreDSN:       getEnv("STORE_DSN", "pebble://./data/futureme"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Letters:  getEnv("DYNAMO_TABLE_LETTERS", "letters"),
			Settings: getEnv("DYNAMO_TABLE_SETTINGS", "settings"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:  getEnv("SNS_TOPIC_ARN", ""),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),

		AppLockEnabled:      getEnvBool("APP_LOCK_ENABLED", false),
		DeviceAuthAvailable: getEnvBool("DEVICE_AUTH_AVAILABLE", true),

		NotificationPermission:   getEnv("NOTIFICATION_PERMISSION", "undetermined"),
		GrantPermissionOnRequest: getEnvBool("GRANT_PERMISSION_ON_REQUEST", true),

		GrantSecret: getEnv("GRANT_SECRET", ""),
		GrantTTL:    getEnvDuration("GRANT_TTL", 15*time.Minute),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n := getEnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
