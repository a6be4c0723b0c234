package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Auth     AuthConfig     `json:"auth"`
	Chain    ChainConfig    `json:"chain"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig contains server related configurations
type ServerConfig struct {
	Port                   int      `json:"port"`
	AllowedOrigins         []string `json:"allowed_origins"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds"`
}

// DatabaseConfig contains database related configurations
type DatabaseConfig struct {
	Driver       string `json:"driver"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// RedisConfig enables the shared nonce/revocation cache and the redis event stream.
// An empty URL keeps everything in process.
type RedisConfig struct {
	URL string `json:"url"`
}

// AuthConfig contains authentication related configurations
type AuthConfig struct {
	JWTSecret             string `json:"jwt_secret"`
	SessionTTLHours       int    `json:"session_ttl_hours"`
	MessageMaxAgeSeconds  int    `json:"message_max_age_seconds"`
	ClockSkewSeconds      int    `json:"clock_skew_seconds"`
	UserIDKey             string `json:"user_id_key"` // hex, 32 bytes
	NonceReplayProtection bool   `json:"nonce_replay_protection"`
}

// ChainConfig contains the indexer and payment policy settings
type ChainConfig struct {
	IndexerURL             string `json:"indexer_url"`
	TreasuryAddress        string `json:"treasury_address"`
	MaxAttempts            int    `json:"max_attempts"`
	BaseDelayMillis        int    `json:"base_delay_ms"`
	RequestTimeoutSeconds  int    `json:"request_timeout_seconds"`
	TrustWalletDestination bool   `json:"trust_wallet_destination"`
	ChatFeeSompi           uint64 `json:"chat_fee_sompi"`
	MinTipSompi            uint64 `json:"min_tip_sompi"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// DSN returns a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SessionTTL is the lifetime of an issued session.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// MessageMaxAge is the freshness window of a signed challenge.
func (c AuthConfig) MessageMaxAge() time.Duration {
	return time.Duration(c.MessageMaxAgeSeconds) * time.Second
}

// ClockSkew is how far in the future a challenge timestamp may be.
func (c AuthConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// BaseDelay is the linear backoff step between indexer lookups.
func (c ChainConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// RequestTimeout bounds a single indexer call.
func (c ChainConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   8080,
			AllowedOrigins:         []string{"*"},
			ShutdownTimeoutSeconds: 10,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Name:         "vivoor",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
		},
		Auth: AuthConfig{
			SessionTTLHours:      24,
			MessageMaxAgeSeconds: 300,
			ClockSkewSeconds:     60,
		},
		Chain: ChainConfig{
			IndexerURL:            "https://api.kaspa.org",
			MaxAttempts:           6,
			BaseDelayMillis:       2000,
			RequestTimeoutSeconds: 8,
			ChatFeeSompi:          20_000_000,
			MinTipSompi:           100_000_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = filepath.Join("configs", "config.json")
	}

	if _, err := os.Stat(configFile); err == nil {
		file, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", configFile, err)
		}
	}

	applyEnv(cfg)
	cfg.Chain.clamp()

	if cfg.Auth.JWTSecret == "" {
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(randomBytes)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		var serverPort int
		if _, err := fmt.Sscanf(port, "%d", &serverPort); err == nil {
			cfg.Server.Port = serverPort
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		var databasePort int
		if _, err := fmt.Sscanf(dbPort, "%d", &databasePort); err == nil {
			cfg.Database.Port = databasePort
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if sslMode := os.Getenv("DB_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if key := os.Getenv("USER_ID_KEY"); key != "" {
		cfg.Auth.UserIDKey = key
	}

	if indexer := os.Getenv("KASPA_INDEXER_URL"); indexer != "" {
		cfg.Chain.IndexerURL = indexer
	}
	if treasury := os.Getenv("TREASURY_ADDRESS"); treasury != "" {
		cfg.Chain.TreasuryAddress = treasury
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// clamp keeps the retry policy inside the range tuned for indexer lag.
func (c *ChainConfig) clamp() {
	c.MaxAttempts = clampInt(c.MaxAttempts, 5, 8)
	c.BaseDelayMillis = clampInt(c.BaseDelayMillis, 1000, 5000)
	c.RequestTimeoutSeconds = clampInt(c.RequestTimeoutSeconds, 5, 10)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate reports configuration that cannot serve requests.
func (c *Config) Validate() error {
	if c.Chain.TreasuryAddress == "" {
		return errors.New("chain.treasury_address is required")
	}
	if c.Chain.IndexerURL == "" {
		return errors.New("chain.indexer_url is required")
	}
	key, err := hex.DecodeString(c.Auth.UserIDKey)
	if err != nil || len(key) != 32 {
		return errors.New("auth.user_id_key must be 32 bytes of hex")
	}
	if c.Auth.SessionTTLHours <= 0 {
		return errors.New("auth.session_ttl_hours must be positive")
	}
	return nil
}
