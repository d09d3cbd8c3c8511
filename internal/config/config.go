package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	// NotificationStore selects the notification backend: "dynamo" or "memory".
	NotificationStore string
	// NotificationsTopicARN receives notifications for recipients with no live socket. Empty disables forwarding.
	NotificationsTopicARN string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	AllowedOrigins []string // CORS allowed origins
	// TrustProxyHeaders makes X-Forwarded-For / X-Real-IP the client address. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool

	Cache          CacheConfig
	Realtime       RealtimeConfig
	PersistTimeout time.Duration
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications string
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	DefaultTTL    time.Duration
	MaxEntries    int
	SweepInterval time.Duration
	// CacheablePaths are path prefixes whose GET responses may be cached.
	CacheablePaths []string
}

// RealtimeConfig configures live socket connections.
type RealtimeConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	CommandRate  float64
	CommandBurst int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
		},
		NotificationStore:     getEnv("NOTIFICATION_STORE", "dynamo"),
		NotificationsTopicARN: getEnv("SNS_NOTIFICATIONS_TOPIC_ARN", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24*7)) * time.Hour,

		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		Cache: CacheConfig{
			DefaultTTL:     getEnvDuration("CACHE_DEFAULT_TTL", 300*time.Second),
			MaxEntries:     getEnvInt("CACHE_MAX_ENTRIES", 10000),
			SweepInterval:  getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
			CacheablePaths: splitList(getEnv("CACHEABLE_PATHS", "/v1/properties,/v1/stats")),
		},
		Realtime: RealtimeConfig{
			SendBuffer:   getEnvInt("WS_SEND_BUFFER", 64),
			WriteTimeout: getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval: getEnvDuration("WS_PING_INTERVAL", 30*time.Second),
			CommandRate:  getEnvFloat("WS_COMMAND_RATE", 10),
			CommandBurst: getEnvInt("WS_COMMAND_BURST", 20),
		},
		PersistTimeout: getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
