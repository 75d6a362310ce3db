package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "kycvault/pkg/platform/strings"
)

// MaxUploadBytes is the largest document accepted by the upload endpoint.
const MaxUploadBytes int64 = 10 << 20

// Server captures process level configuration. Backends are selected by the
// presence of their connection settings; absent settings fall back to the
// in-memory implementations.
type Server struct {
	Addr                  string
	LogLevel              string
	LogFormat             string
	MaxUploadBytes        int64
	RequireApprovedAccess bool

	Content  ContentConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// ContentConfig configures the pinning-service content store.
type ContentConfig struct {
	APIKey      string
	APISecret   string
	APIURL      string
	GatewayURL  string
	Timeout     time.Duration
	MaxAttempts int
	CacheSize   int

	// CacheMaxBytes bounds the bytes held by the read cache. Items above
	// CacheMaxEntryBytes are never cached.
	CacheMaxBytes      int64
	CacheMaxEntryBytes int64
}

// Enabled reports whether pinning-service credentials were supplied.
func (c ContentConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// RedisConfig configures the Redis-backed record store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the permission store and event log.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// KafkaConfig configures the event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Buffer is the number of events queued for publication before new
	// events are dropped.
	Buffer int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:                  envString("KYC_ADDR", ":8080"),
		LogLevel:              envString("LOG_LEVEL", "info"),
		LogFormat:             envString("LOG_FORMAT", "json"),
		MaxUploadBytes:        envInt64("MAX_UPLOAD_BYTES", MaxUploadBytes),
		RequireApprovedAccess: os.Getenv("REQUIRE_APPROVED_ACCESS") == "true",
		Content: ContentConfig{
			APIKey:      os.Getenv("PINATA_API_KEY"),
			APISecret:   os.Getenv("PINATA_SECRET_API_KEY"),
			APIURL:      envString("PINATA_API_URL", "https://api.pinata.cloud"),
			GatewayURL:  envString("PINATA_GATEWAY_URL", "https://gateway.pinata.cloud"),
			Timeout:     envDuration("CONTENT_TIMEOUT", 15*time.Second),
			MaxAttempts: int(envInt64("CONTENT_MAX_ATTEMPTS", 3)),
			CacheSize:   int(envInt64("CONTENT_CACHE_SIZE", 256)),

			CacheMaxBytes:      envInt64("CONTENT_CACHE_MAX_BYTES", 64<<20),
			CacheMaxEntryBytes: envInt64("CONTENT_CACHE_MAX_ENTRY_BYTES", 2<<20),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     int(envInt64("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(envInt64("REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: int(envInt64("DATABASE_MAX_OPEN_CONNS", 20)),
			MaxIdleConns: int(envInt64("DATABASE_MAX_IDLE_CONNS", 5)),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_EVENTS_TOPIC", "kyc.events"),
			Buffer:  int(envInt64("KAFKA_EVENT_BUFFER", 1024)),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key string) []string {
	return pstrings.SplitList(os.Getenv(key))
}
