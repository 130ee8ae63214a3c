// Package engineconfig provides configuration management for the
// simulation engine's organizer and worker processes.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package engineconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Organizer OrganizerConfig `mapstructure:"organizer"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	River     RiverConfig     `mapstructure:"river"`
	Security  SecurityConfig  `mapstructure:"security"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// EngineConfig holds the node-identity and transport options every engine
// instance (local sim, organizer, worker) reads at startup (spec §6).
type EngineConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`

	// ProjectRoot is the <root> spec §6's project layout is fixed under:
	// <root>/scenarios, <root>/modules, <root>/snapshots.
	ProjectRoot string `mapstructure:"project_root"`
	// ScenarioName is the scenario this process loads at startup.
	ScenarioName string `mapstructure:"scenario_name"`
	// EngineVersion is this build's compatibility version, checked against a
	// scenario/module manifest's own version pin.
	EngineVersion string `mapstructure:"engine_version"`
	// BindAddr is the host:port this process listens on for peer
	// connections (cmd/organizer's worker-facing listener).
	BindAddr string `mapstructure:"bind_addr"`
	// OrganizerAddr is the ws:// URL a worker process dials to reach its
	// organizer (cmd/worker only).
	OrganizerAddr string `mapstructure:"organizer_addr"`
	// SelfAddr is this process's own logical address, announced to peers
	// over the Transport Facade (cmd/worker only; cmd/organizer is always
	// addressed as "organizer").
	SelfAddr string `mapstructure:"self_addr"`

	// SelfKeepalive is how often this node pings its peers.
	SelfKeepalive time.Duration `mapstructure:"self_keepalive"`
	// ClientKeepalive is the max silence tolerated from a connected client
	// before it is considered disconnected.
	ClientKeepalive time.Duration `mapstructure:"client_keepalive"`
	// PollWait bounds how long a non-blocking socket poll waits per cycle.
	PollWait time.Duration `mapstructure:"poll_wait"`
	// AcceptDelay is the backoff applied between failed accept attempts.
	AcceptDelay time.Duration `mapstructure:"accept_delay"`

	UseCompression bool `mapstructure:"use_compression"`

	UseAuth bool `mapstructure:"use_auth"`
	// AuthPairs maps a username to a bcrypt password hash (spec §6); empty
	// when UseAuth is false.
	AuthPairs map[string]string `mapstructure:"auth_pairs"`

	// Transports lists the socket implementations this node will accept
	// connections on (e.g. "websocket").
	Transports []string `mapstructure:"transports"`
	// Encodings lists the wire encodings offered, in preference order
	// (e.g. "bincode", "json").
	Encodings []string `mapstructure:"encodings"`

	// MaxStepInstructions bounds command-VM execution per entity-component
	// per step (spec §4.D). 0 means "use the compiled-in default", not
	// "unlimited".
	MaxStepInstructions int `mapstructure:"max_step_instructions"`
}

// OrganizerConfig holds settings specific to the central-authority process.
type OrganizerConfig struct {
	// TaskTimeout bounds how long the organizer waits for all workers to
	// acknowledge a distributed task before it errors out the caller.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// PlacementPolicy picks how newly spawned entities are assigned to
	// workers: "random" (default), "round_robin", or "least_loaded".
	PlacementPolicy string `mapstructure:"placement_policy"`
}

// ServerConfig contains the HTTP control-surface server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings for the snapshot
// store and the River job queue, which share one connection pool.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings for the async snapshot export,
// scheduled-transfer, and retention jobs.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains client-auth related settings.
type SecurityConfig struct {
	// SessionSecret signs issued client JWTs.
	SessionSecret string `mapstructure:"session_secret"`
	// EncryptionKey is reserved for at-rest snapshot encryption.
	EncryptionKey       string        `mapstructure:"encryption_key"`
	JWTVerificationKeys []string      `mapstructure:"jwt_verification_keys"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	JWTExpiresIn        time.Duration `mapstructure:"jwt_expires_in"`
}

// WorkerConfig contains goroutine pool settings (internal/workerpool).
type WorkerConfig struct {
	GeneralPoolSize   int `mapstructure:"general_pool_size"`
	TransportPoolSize int `mapstructure:"transport_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Environment variables use standard names without a prefix (DATABASE_URL,
// SERVER_PORT, LOG_LEVEL, etc.); nested keys map dot-to-underscore
// (database.max_conns -> DATABASE_MAX_CONNS).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/outcome-sim")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.SessionSecret == "" {
		return fmt.Errorf("security.session_secret must not be empty")
	}
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}
	if c.Engine.MaxStepInstructions < 0 {
		return fmt.Errorf("engine.max_step_instructions must not be negative")
	}
	return nil
}

// ensureSecrets auto-generates missing secrets on first boot.
func (c *Config) ensureSecrets() error {
	if c.Security.SessionSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate session secret: %w", err)
		}
		c.Security.SessionSecret = secret
		logBootstrapWarn(
			"auto-generated session_secret; set SECURITY_SESSION_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	if c.Security.EncryptionKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		logBootstrapWarn(
			"auto-generated encryption_key; set SECURITY_ENCRYPTION_KEY env var for persistence",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Engine (spec §6)
	v.SetDefault("engine.name", "outcome-sim")
	v.SetDefault("engine.description", "")
	v.SetDefault("engine.project_root", ".")
	v.SetDefault("engine.scenario_name", "")
	v.SetDefault("engine.engine_version", "1.0.0")
	v.SetDefault("engine.bind_addr", ":7700")
	v.SetDefault("engine.organizer_addr", "ws://127.0.0.1:7700/ws")
	v.SetDefault("engine.self_addr", "")
	v.SetDefault("engine.self_keepalive", "15s")
	v.SetDefault("engine.client_keepalive", "45s")
	v.SetDefault("engine.poll_wait", "10ms")
	v.SetDefault("engine.accept_delay", "100ms")
	v.SetDefault("engine.use_compression", false)
	v.SetDefault("engine.use_auth", false)
	v.SetDefault("engine.auth_pairs", map[string]string{})
	v.SetDefault("engine.transports", []string{"websocket"})
	v.SetDefault("engine.encodings", []string{"json"})
	v.SetDefault("engine.max_step_instructions", 100000)

	// Organizer
	v.SetDefault("organizer.task_timeout", "30s")
	v.SetDefault("organizer.placement_policy", "random")

	// Server (HTTP control surface)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database (snapshot store + River, shared pool)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "outcome")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "outcome")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_verification_keys", []string{})
	v.SetDefault("security.jwt_issuer", "outcome-sim")
	v.SetDefault("security.jwt_expires_in", "24h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.transport_pool_size", 50)
}
