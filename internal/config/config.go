// Package config loads the server configuration from YAML and environment.
package config

import "time"

// Config is the root server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Device     DeviceConfig     `yaml:"device"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Aggregate  AggregateConfig  `yaml:"aggregate"`
	Collection CollectionConfig `yaml:"collection"`
	Tokens     TokensConfig     `yaml:"tokens"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Limiter    LimiterConfig    `yaml:"limiter"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds gRPC listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8443"`
	TLSCert         string        `yaml:"tls_cert"         env:"SERVER_TLS_CERT"`
	TLSKey          string        `yaml:"tls_key"          env:"SERVER_TLS_KEY"`
	Reflection      bool          `yaml:"reflection"       env:"SERVER_REFLECTION"       env-default:"false"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"       env:"DATABASE_DSN"       env-required:"true"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env:"DATABASE_MIN_CONNS" env-default:"1"`
	Migrate  bool   `yaml:"migrate"   env:"DATABASE_MIGRATE"   env-default:"true"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTKey    string        `yaml:"jwt_key"    env:"AUTH_JWT_KEY"    env-required:"true"`
	AccessTTL time.Duration `yaml:"access_ttl" env:"AUTH_ACCESS_TTL" env-default:"12h"`
}

// DeviceConfig holds serial transport settings.
type DeviceConfig struct {
	Enabled           bool          `yaml:"enabled"            env:"DEVICE_ENABLED"            env-default:"true"`
	Port              string        `yaml:"port"               env:"DEVICE_PORT"               env-default:"/dev/ttyUSB0"`
	Baud              int           `yaml:"baud"               env:"DEVICE_BAUD"               env-default:"9600"`
	ReadTimeout       time.Duration `yaml:"read_timeout"       env:"DEVICE_READ_TIMEOUT"       env-default:"0s"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" env:"DEVICE_RECONNECT_INTERVAL" env-default:"5s"`
	Hotplug           bool          `yaml:"hotplug"            env:"DEVICE_HOTPLUG"            env-default:"true"`
}

// ResolverConfig holds bin resolver cache settings.
type ResolverConfig struct {
	TTL time.Duration `yaml:"ttl" env:"RESOLVER_TTL" env-default:"30s"`
}

// AggregateConfig holds fill percentage thresholds.
type AggregateConfig struct {
	CategoryThreshold int `yaml:"category_threshold" env:"AGGREGATE_CATEGORY_THRESHOLD" env-default:"20"`
	BinThreshold      int `yaml:"bin_threshold"      env:"AGGREGATE_BIN_THRESHOLD"      env-default:"50"`
}

// Collection log backends.
const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// CollectionConfig selects the collection log backend.
type CollectionConfig struct {
	Backend  string `yaml:"backend"   env:"COLLECTION_BACKEND"   env-default:"postgres"`
	FilePath string `yaml:"file_path" env:"COLLECTION_FILE_PATH" env-default:"data/collection_log.json"`
}

// TokensConfig holds verification code lifetimes.
type TokensConfig struct {
	CodeTTL  time.Duration `yaml:"code_ttl"  env:"TOKENS_CODE_TTL"  env-default:"10m"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKENS_TOKEN_TTL" env-default:"30m"`
}

// MQTTConfig holds live telemetry publisher settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"      env:"MQTT_ENABLED"      env-default:"false"`
	Broker      string `yaml:"broker"       env:"MQTT_BROKER"       env-default:"tcp://localhost:1883"`
	ClientID    string `yaml:"client_id"    env:"MQTT_CLIENT_ID"    env-default:"sortwatch"`
	TopicPrefix string `yaml:"topic_prefix" env:"MQTT_TOPIC_PREFIX" env-default:"sortwatch"`
}

// LimiterConfig holds verification lockout settings.
type LimiterConfig struct {
	Window   time.Duration `yaml:"window"    env:"LIMITER_WINDOW"    env-default:"15m"`
	MaxFails int           `yaml:"max_fails" env:"LIMITER_MAX_FAILS" env-default:"5"`
	BlockFor time.Duration `yaml:"block_for" env:"LIMITER_BLOCK_FOR" env-default:"15m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
