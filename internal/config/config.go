package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Persistence PersistenceConfig
	Retry       RetryConfig
	Auth        AuthConfig
	Backup      BackupConfig
	TextGen     TextGenConfig
	Logging     LoggingConfig
	Server      ServerConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// StorageConfig selects where the collections are persisted
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, postgres or redis
	Backend string
	// DataDir is the directory used by the file backend
	DataDir string
	// SQLitePath is the database file used by the sqlite backend
	SQLitePath string
	// QuotaBytes limits the total stored size for the memory and file backends (0 disables)
	QuotaBytes int64
	LeadsKey   string
	ExposesKey string
	DraftKey   string
	// PollIntervalMs is how often the SQL backends look for foreign writes
	PollIntervalMs int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type PersistenceConfig struct {
	// DebounceMs is the window in which repeated saves collapse into one write
	DebounceMs int
}

// RetryConfig configures retries of outbound calls
type RetryConfig struct {
	MaxRetries     int
	InitialDelayMs int
	MaxDelayMs     int
	BackoffFactor  float64
}

// AuthConfig configures validation of the identity provider's access tokens
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	// Required rejects requests without a token. When false, anonymous
	// requests use the unscoped collections.
	Required bool
}

type BackupConfig struct {
	Enabled bool
	// Cron is a standard five-field cron expression
	Cron string
	Mode string
	// Retain is how many backups per collection are kept (0 keeps all)
	Retain                int
	LocalPath             string
	AzureConnectionString string
	AzureContainer        string
}

type TextGenConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	// MaxBodyMB caps request bodies, imports included
	MaxBodyMB int64
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the limit for unauthenticated requests (per IP)
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the limit for authenticated requests (per user)
	RequestsPerMinuteAuth int
	WhitelistPaths        []string
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// PollInterval returns the SQL poll interval as duration
func (s *StorageConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// Debounce returns the debounce window as duration
func (p *PersistenceConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// InitialDelay returns the first retry delay as duration
func (r *RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap as duration
func (r *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Timeout returns the text generation request timeout as duration
func (t *TextGenConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets commonly injected without the section prefix
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = v.GetString("SUPABASE_JWT_SECRET")
	}
	if cfg.TextGen.APIKey == "" {
		cfg.TextGen.APIKey = v.GetString("OPENAI_API_KEY")
	}
	if cfg.Backup.AzureConnectionString == "" {
		cfg.Backup.AzureConnectionString = v.GetString("AZURE_STORAGE_CONNECTION_STRING")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations viper cannot express
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required when auth.required is set")
	}
	if c.Backup.Enabled {
		switch c.Backup.Mode {
		case "local", "azure":
		default:
			return fmt.Errorf("unknown backup mode %q", c.Backup.Mode)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "MaklerMate API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Storage defaults
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.dataDir", "./data")
	v.SetDefault("storage.sqlitePath", "./data/maklermate.db")
	v.SetDefault("storage.quotaBytes", 5*1024*1024)
	v.SetDefault("storage.leadsKey", "maklermate_leads")
	v.SetDefault("storage.exposesKey", "maklermate_exposes")
	v.SetDefault("storage.draftKey", "maklermate_draft")
	v.SetDefault("storage.pollIntervalMs", 1000)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "maklermate")
	v.SetDefault("database.user", "maklermate")
	v.SetDefault("database.password", "maklermate")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", 300)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "maklermate:changes")

	v.SetDefault("persistence.debounceMs", 150)

	// Retry defaults
	v.SetDefault("retry.maxRetries", 3)
	v.SetDefault("retry.initialDelayMs", 1000)
	v.SetDefault("retry.maxDelayMs", 10000)
	v.SetDefault("retry.backoffFactor", 2.0)

	v.SetDefault("auth.required", false)

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.cron", "0 3 * * *")
	v.SetDefault("backup.mode", "local")
	v.SetDefault("backup.retain", 14)
	v.SetDefault("backup.localPath", "./backups")
	v.SetDefault("backup.azureContainer", "maklermate-backups")

	// Text generation defaults
	v.SetDefault("textgen.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("textgen.model", "gpt-4o-mini")
	v.SetDefault("textgen.timeoutSeconds", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 90)
	v.SetDefault("server.requestTimeout", 80)
	v.SetDefault("server.maxBodyMB", 10)

	// CORS defaults
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Content-Disposition", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 240)
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health"})
}
