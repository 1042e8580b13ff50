// Package config binds process configuration from the environment using
// viper, following the nested Database/JWT/Redis/Server/Mail shape the rest
// of this module expects from its constructors.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MagicLinkExpiry    time.Duration
	UnauthTokenExpiry  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	URL      string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MailConfig names which outbound provider and inbound poll cadence the
// dispatcher and poller use. Per-EmailAccount provider credentials are
// sealed in the database, not here — this only carries process-wide
// defaults and the envelope master key.
type MailConfig struct {
	MasterEncryptionKey string
	PollInterval        time.Duration
	PollBatchSize       int

	ReconcileInterval      time.Duration
	MaxConnsPerHost        int
	MaxConsecutiveFailures int
	BackoffBase            time.Duration
	BackoffCap             time.Duration
	ReplyDomain            string
	FilterLoggingEnabled   bool
}

// AIConfig bounds the AI reply coordinator's rate limiting, independent of
// any one TextGenerator implementation's own limits.
type AIConfig struct {
	RateLimitPerTicket int
	RateLimitWindow    time.Duration
	GenerateTimeout    time.Duration
}

type TrashConfig struct {
	RetentionTTL  time.Duration
	ScanInterval  time.Duration
}

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Server   ServerConfig
	Mail     MailConfig
	AI       AIConfig
	Trash    TrashConfig
}

// Load reads configuration from environment variables (CONVCORE_ prefix),
// falling back to development-friendly defaults for everything except
// secrets, which must be set explicitly.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONVCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "convcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expiry", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_expiry", 7*24*time.Hour)
	v.SetDefault("jwt.magic_link_expiry", 24*time.Hour)
	v.SetDefault("jwt.unauth_token_expiry", 48*time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.url", "")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("mail.master_encryption_key", "")
	v.SetDefault("mail.poll_interval", 60*time.Second)
	v.SetDefault("mail.poll_batch_size", 50)
	v.SetDefault("mail.reconcile_interval", 30*time.Second)
	v.SetDefault("mail.max_conns_per_host", 4)
	v.SetDefault("mail.max_consecutive_failures", 5)
	v.SetDefault("mail.backoff_base", time.Second)
	v.SetDefault("mail.backoff_cap", 5*time.Minute)
	v.SetDefault("mail.reply_domain", "reply.example.com")
	v.SetDefault("mail.filter_logging_enabled", true)

	v.SetDefault("ai.rate_limit_per_ticket", 5)
	v.SetDefault("ai.rate_limit_window", time.Hour)
	v.SetDefault("ai.generate_timeout", 30*time.Second)

	v.SetDefault("trash.retention_ttl", 30*24*time.Hour)
	v.SetDefault("trash.scan_interval", time.Hour)

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		JWT: JWTConfig{
			Secret:             v.GetString("jwt.secret"),
			AccessTokenExpiry:  v.GetDuration("jwt.access_token_expiry"),
			RefreshTokenExpiry: v.GetDuration("jwt.refresh_token_expiry"),
			MagicLinkExpiry:    v.GetDuration("jwt.magic_link_expiry"),
			UnauthTokenExpiry:  v.GetDuration("jwt.unauth_token_expiry"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			URL:      v.GetString("redis.url"),
		},
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Mail: MailConfig{
			MasterEncryptionKey:    v.GetString("mail.master_encryption_key"),
			PollInterval:           v.GetDuration("mail.poll_interval"),
			PollBatchSize:          v.GetInt("mail.poll_batch_size"),
			ReconcileInterval:      v.GetDuration("mail.reconcile_interval"),
			MaxConnsPerHost:        v.GetInt("mail.max_conns_per_host"),
			MaxConsecutiveFailures: v.GetInt("mail.max_consecutive_failures"),
			BackoffBase:            v.GetDuration("mail.backoff_base"),
			BackoffCap:             v.GetDuration("mail.backoff_cap"),
			ReplyDomain:            v.GetString("mail.reply_domain"),
			FilterLoggingEnabled:   v.GetBool("mail.filter_logging_enabled"),
		},
		AI: AIConfig{
			RateLimitPerTicket: v.GetInt("ai.rate_limit_per_ticket"),
			RateLimitWindow:    v.GetDuration("ai.rate_limit_window"),
			GenerateTimeout:    v.GetDuration("ai.generate_timeout"),
		},
		Trash: TrashConfig{
			RetentionTTL: v.GetDuration("trash.retention_ttl"),
			ScanInterval: v.GetDuration("trash.scan_interval"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("CONVCORE_JWT_SECRET is required")
	}
	if cfg.Mail.MasterEncryptionKey == "" {
		return nil, fmt.Errorf("CONVCORE_MAIL_MASTER_ENCRYPTION_KEY is required")
	}
	if len(cfg.Mail.MasterEncryptionKey) < 32 {
		return nil, fmt.Errorf("CONVCORE_MAIL_MASTER_ENCRYPTION_KEY must be at least 32 bytes")
	}

	return cfg, nil
}
