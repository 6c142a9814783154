package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	stringsx "dutyflow/pkg/platform/strings"
)

// EnvPrefix is prepended to every environment variable, e.g. DUTYFLOW_SERVER_ADDR.
const EnvPrefix = "DUTYFLOW"

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Log      Log
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     Auth
	Evidence Evidence
	Duty     Duty
	Relay    Relay
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

type Log struct {
	Level  string
	Format string
}

// DatabaseConfig selects Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification publisher. No brokers selects the log publisher.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	AutoProvision bool
	TokenTTL      time.Duration
}

type Evidence struct {
	Dir           string
	PublicBaseURL string
	MaxBytes      int64
	AllowedTypes  []string
}

type Duty struct {
	// TransitionPolicy is "strict" or "lenient".
	TransitionPolicy string
	// Locking is "none", "local" or "redis".
	Locking  string
	LockTTL  time.Duration
	LockWait time.Duration
}

type Relay struct {
	Interval         time.Duration
	BatchSize        int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Defaults registers a default for every key so env-only deployments work.
func Defaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "duty-notifications")
	v.SetDefault("kafka.client_id", "dutyflow")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.issuer", "dutyflow")
	v.SetDefault("auth.audience", "dutyflow-api")
	v.SetDefault("auth.auto_provision", true)
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("evidence.dir", "./data/evidence")
	v.SetDefault("evidence.public_base_url", "http://localhost:8080")
	v.SetDefault("evidence.max_bytes", 10<<20)
	v.SetDefault("evidence.allowed_types", []string{"image/jpeg", "image/png", "image/webp", "application/pdf"})

	v.SetDefault("duty.transition_policy", "strict")
	v.SetDefault("duty.locking", "none")
	v.SetDefault("duty.lock_ttl", 10*time.Second)
	v.SetDefault("duty.lock_wait", 3*time.Second)

	v.SetDefault("relay.interval", 2*time.Second)
	v.SetDefault("relay.batch_size", 100)
	v.SetDefault("relay.breaker_threshold", 5)
	v.SetDefault("relay.breaker_cooldown", 30*time.Second)
}

// NewViper returns a viper instance bound to DUTYFLOW_* environment variables.
// Nested keys map to underscores: duty.transition_policy -> DUTYFLOW_DUTY_TRANSITION_POLICY.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	Defaults(v)
	return v
}

// Load reads an optional config file and decodes v into a validated Config.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:              v.GetString("server.addr"),
			ReadHeaderTimeout: v.GetDuration("server.read_header_timeout"),
			RequestTimeout:    v.GetDuration("server.request_timeout"),
			ShutdownTimeout:   v.GetDuration("server.shutdown_timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:           stringsx.SplitList(v.GetStringSlice("kafka.brokers")),
			Topic:             v.GetString("kafka.topic"),
			ClientID:          v.GetString("kafka.client_id"),
			Partitions:        v.GetInt32("kafka.partitions"),
			ReplicationFactor: int16(v.GetInt("kafka.replication_factor")),
		},
		Auth: Auth{
			JWTSigningKey: v.GetString("auth.jwt_signing_key"),
			Issuer:        v.GetString("auth.issuer"),
			Audience:      v.GetString("auth.audience"),
			AutoProvision: v.GetBool("auth.auto_provision"),
			TokenTTL:      v.GetDuration("auth.token_ttl"),
		},
		Evidence: Evidence{
			Dir:           v.GetString("evidence.dir"),
			PublicBaseURL: strings.TrimRight(v.GetString("evidence.public_base_url"), "/"),
			MaxBytes:      v.GetInt64("evidence.max_bytes"),
			AllowedTypes:  stringsx.SplitListLower(v.GetStringSlice("evidence.allowed_types")),
		},
		Duty: Duty{
			TransitionPolicy: strings.ToLower(v.GetString("duty.transition_policy")),
			Locking:          strings.ToLower(v.GetString("duty.locking")),
			LockTTL:          v.GetDuration("duty.lock_ttl"),
			LockWait:         v.GetDuration("duty.lock_wait"),
		},
		Relay: Relay{
			Interval:         v.GetDuration("relay.interval"),
			BatchSize:        v.GetInt("relay.batch_size"),
			BreakerThreshold: v.GetInt("relay.breaker_threshold"),
			BreakerCooldown:  v.GetDuration("relay.breaker_cooldown"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Duty.TransitionPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("duty.transition_policy must be strict or lenient, got %q", c.Duty.TransitionPolicy)
	}
	switch c.Duty.Locking {
	case "none", "local":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("duty.locking=redis requires redis.url")
		}
	default:
		return fmt.Errorf("duty.locking must be none, local or redis, got %q", c.Duty.Locking)
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwt_signing_key is required")
	}
	if c.Evidence.MaxBytes <= 0 {
		return fmt.Errorf("evidence.max_bytes must be positive")
	}
	if c.Relay.BatchSize <= 0 {
		return fmt.Errorf("relay.batch_size must be positive")
	}
	return nil
}
