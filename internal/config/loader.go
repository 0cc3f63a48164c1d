package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/reiteradas/internal/db"
	"github.com/rpattn/reiteradas/internal/ingestion"
	"github.com/rpattn/reiteradas/internal/logger"
	"github.com/rpattn/reiteradas/internal/progress"
	firestorestore "github.com/rpattn/reiteradas/internal/repository/firestore"
	"github.com/rpattn/reiteradas/internal/repository/mongodb"
)

// EnvPrefix prefixes every environment override, e.g. REITERADAS_STORE_DRIVER.
const EnvPrefix = "REITERADAS"

// Store drivers.
const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMongoDB   = "mongodb"
	DriverMemory    = "memory"
)

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Migrate applies the embedded schema on startup (postgres only).
	Migrate bool `mapstructure:"migrate"`
}

type RedisConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	progress.RedisConfig `mapstructure:",squash"`
}

type AuthConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	AdminEmails []string `mapstructure:"admin_emails"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Store     StoreConfig           `mapstructure:"store"`
	Database  db.Config             `mapstructure:"database"`
	Firestore firestorestore.Config `mapstructure:"firestore"`
	MongoDB   mongodb.Config        `mapstructure:"mongodb"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Ingestion ingestion.Config      `mapstructure:"ingestion"`
	Log       logger.Config         `mapstructure:"log"`
	Auth      AuthConfig            `mapstructure:"auth"`
	CORS      CORSConfig            `mapstructure:"cors"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			UploadTimeout:   30 * time.Minute,
			RateLimit:       20,
			RateBurst:       40,
		},
		Store:     StoreConfig{Driver: DriverPostgres, Migrate: true},
		Database:  db.DefaultConfig(),
		Firestore: firestorestore.DefaultConfig(),
		MongoDB:   mongodb.DefaultConfig(),
		Redis:     RedisConfig{RedisConfig: progress.DefaultRedisConfig("localhost:6379")},
		Ingestion: ingestion.DefaultConfig(),
		Log:       logger.DefaultConfig(),
		Auth:      AuthConfig{AdminEmails: []string{}},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// setDefaults registers every key so that environment overrides reach
// Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"server.address":          cfg.Server.Address,
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
		"server.upload_timeout":   cfg.Server.UploadTimeout,
		"server.rate_limit":       cfg.Server.RateLimit,
		"server.rate_burst":       cfg.Server.RateBurst,

		"store.driver":  cfg.Store.Driver,
		"store.migrate": cfg.Store.Migrate,

		"database.host":      cfg.Database.Host,
		"database.port":      cfg.Database.Port,
		"database.user":      cfg.Database.User,
		"database.password":  cfg.Database.Password,
		"database.dbname":    cfg.Database.DBName,
		"database.sslmode":   cfg.Database.SSLMode,
		"database.max_conns": cfg.Database.MaxConns,

		"firestore.project_id":         cfg.Firestore.ProjectID,
		"firestore.credentials_file":   cfg.Firestore.CredentialsFile,
		"firestore.records_collection": cfg.Firestore.RecordsCollection,
		"firestore.uploads_collection": cfg.Firestore.UploadsCollection,

		"mongodb.uri":                cfg.MongoDB.URI,
		"mongodb.database":           cfg.MongoDB.Database,
		"mongodb.records_collection": cfg.MongoDB.RecordsCollection,
		"mongodb.uploads_collection": cfg.MongoDB.UploadsCollection,
		"mongodb.timeout":            cfg.MongoDB.Timeout,
		"mongodb.transactions":       cfg.MongoDB.Transactions,

		"redis.enabled":   cfg.Redis.Enabled,
		"redis.address":   cfg.Redis.Address,
		"redis.password":  cfg.Redis.Password,
		"redis.database":  cfg.Redis.Database,
		"redis.prefix":    cfg.Redis.Prefix,
		"redis.ttl":       cfg.Redis.TTL,
		"redis.timeout":   cfg.Redis.Timeout,
		"redis.pool_size": cfg.Redis.PoolSize,

		"ingestion.batch_size":            cfg.Ingestion.BatchSize,
		"ingestion.throttle":              cfg.Ingestion.Throttle,
		"ingestion.delete_page_size":      cfg.Ingestion.DeletePageSize,
		"ingestion.delete_pause":          cfg.Ingestion.DeletePause,
		"ingestion.clear_pause":           cfg.Ingestion.ClearPause,
		"ingestion.retry.initial_backoff": cfg.Ingestion.Retry.InitialBackoff,
		"ingestion.retry.max_backoff":     cfg.Ingestion.Retry.MaxBackoff,
		"ingestion.retry.max_retries":     cfg.Ingestion.Retry.MaxRetries,

		"log.level":       cfg.Log.Level,
		"log.format":      cfg.Log.Format,
		"log.output":      cfg.Log.Output,
		"log.path":        cfg.Log.Path,
		"log.max_size":    cfg.Log.MaxSize,
		"log.max_backups": cfg.Log.MaxBackups,
		"log.max_age":     cfg.Log.MaxAge,
		"log.compress":    cfg.Log.Compress,

		"auth.enabled":      cfg.Auth.Enabled,
		"auth.admin_emails": cfg.Auth.AdminEmails,

		"cors.allowed_origins": cfg.CORS.AllowedOrigins,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads an optional .env file, an optional YAML config file and
// REITERADAS_* environment variables, in increasing precedence. An empty
// path looks for config.yaml in the working directory and ./config.
func Load(path string) (Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Auth.AdminEmails = splitList(cfg.Auth.AdminEmails)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the stores cannot honor.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverFirestore, DriverMongoDB, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	// Firestore rejects batches above 500 writes.
	if c.Ingestion.BatchSize > 500 || c.Ingestion.DeletePageSize > 500 {
		return fmt.Errorf("batch sizes must not exceed 500 (batch_size=%d, delete_page_size=%d)",
			c.Ingestion.BatchSize, c.Ingestion.DeletePageSize)
	}
	if c.Store.Driver == DriverFirestore && c.Firestore.ProjectID == "" && c.Firestore.CredentialsFile == "" {
		return errors.New("firestore needs a project_id or a credentials_file")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis is enabled without an address")
	}
	return nil
}
