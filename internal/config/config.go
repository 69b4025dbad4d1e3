// Package config defines the marketplace daemon configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by MARKET_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Wallet   WalletConfig   `toml:"wallet"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the engine parameters and the EIP-712 signing domain.
type MarketConfig struct {
	Name          string `toml:"name"`
	Version       string `toml:"version"`
	ChainID       int64  `toml:"chain_id"`
	Address       string `toml:"address"`
	Owner         string `toml:"owner"`
	FeeRecipient  string `toml:"fee_recipient"`
	Custodian     string `toml:"custodian"`
	TokenContract string `toml:"token_contract"`
	// DefaultFees maps mechanism state names (on_sale, on_auction,
	// on_raffle, on_loan) to basis points.
	DefaultFees     map[string]uint32 `toml:"default_fees"`
	AntiSnipeWindow duration          `toml:"anti_snipe_window"`
	RaffleSeed      string            `toml:"raffle_seed"`
}

// WalletConfig is the signing key used by marketctl.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds connection parameters. With neither dsn nor host set
// the daemon keeps state in memory.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// Enabled reports whether a database is configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || strings.TrimSpace(c.Host) != ""
}

// RedisConfig holds Redis connection parameters. An empty addr disables
// Redis and the daemon falls back to in-process equivalents.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	MetadataTTL  duration `toml:"metadata_ttl"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules registry snapshots to S3.
type ArchiveConfig struct {
	Enabled    bool     `toml:"enabled"`
	Cron       string   `toml:"cron"`
	Prefix     string   `toml:"prefix"`
	Keep       int      `toml:"keep"`
	LockTTL    duration `toml:"lock_ttl"`
	PartSizeMB int64    `toml:"part_size_mb"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// MaxSkew bounds the age of a signed request timestamp.
	MaxSkew         duration `toml:"max_skew"`
	ReplayCacheSize int      `toml:"replay_cache_size"`
	DevEndpoints    bool     `toml:"dev_endpoints"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	PollInterval      duration `toml:"poll_interval"`
}

// Enabled reports whether any notification channel is configured.
func (c NotifyConfig) Enabled() bool {
	return c.DiscordWebhookURL != "" || (c.TelegramToken != "" && c.TelegramChatID != "")
}

// Defaults returns a Config with development defaults: in-memory state, no
// Redis, the in-process chain and the API on :8000.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Name:          "AssetMarket",
			Version:       "1",
			ChainID:       31337,
			TokenContract: "0x0000000000000000000000000000000000001155",
			Custodian:     "0x00000000000000000000000000000000000c057d",
			DefaultFees: map[string]uint32{
				"on_sale":    250,
				"on_auction": 250,
				"on_raffle":  250,
				"on_loan":    100,
			},
			AntiSnipeWindow: duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "postgres",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
			MetadataTTL:  duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "assetmarket-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:       "0 3 * * *",
			Prefix:     "archive/snapshots",
			Keep:       30,
			LockTTL:    duration{15 * time.Minute},
			PartSizeMB: 8,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			MaxSkew:         duration{5 * time.Minute},
			ReplayCacheSize: 65536,
		},
		Notify: NotifyConfig{
			Events:       []string{"sale", "auction_ended", "raffle_ended", "loan_liquidated"},
			PollInterval: duration{2 * time.Second},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"full":    true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("mode: must be one of server, full, archive; got %q", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("log_level: must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	// Market
	if c.Market.Name == "" || c.Market.Version == "" {
		errs = append(errs, "market: name and version must not be empty")
	}
	if c.Market.ChainID <= 0 {
		errs = append(errs, "market: chain_id must be > 0")
	}
	if !common.IsHexAddress(c.Market.Owner) {
		errs = append(errs, fmt.Sprintf("market: owner must be a hex address, got %q", c.Market.Owner))
	}
	for field, v := range map[string]string{
		"custodian":      c.Market.Custodian,
		"token_contract": c.Market.TokenContract,
	} {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("market: %s must be a hex address, got %q", field, v))
		}
	}
	for field, v := range map[string]string{
		"fee_recipient": c.Market.FeeRecipient,
		"address":       c.Market.Address,
	} {
		if v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("market: %s must be a hex address, got %q", field, v))
		}
	}
	if _, err := c.Market.Fees(); err != nil {
		errs = append(errs, "market: "+err.Error())
	}

	// Postgres
	if c.Postgres.Enabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive needs S3; the full mode only archives when enabled.
	archiving := c.Mode == "archive" || (c.Mode == "full" && c.Archive.Enabled)
	if archiving {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.Keep < 1 {
			errs = append(errs, "archive: keep must be >= 1")
		}
		// An in-memory store is empty in a fresh archive process.
		if c.Mode == "archive" && !c.Postgres.Enabled() {
			errs = append(errs, "archive: mode archive requires postgres")
		}
		if c.Mode == "full" && strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Server
	if c.Mode != "archive" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.MaxSkew.Duration <= 0 {
			errs = append(errs, "server: max_skew must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Fees converts DefaultFees to engine form. Keys must name mechanism states
// and values must not exceed 10000.
func (m MarketConfig) Fees() (map[domain.State]uint32, error) {
	out := make(map[domain.State]uint32, len(m.DefaultFees))
	for name, bps := range m.DefaultFees {
		s, err := domain.ParseState(name)
		if err != nil {
			return nil, fmt.Errorf("default_fees: %w", err)
		}
		if !s.IsMechanism() {
			return nil, fmt.Errorf("default_fees: %s is not a mechanism state", s)
		}
		if bps > domain.BasisPoints {
			return nil, fmt.Errorf("default_fees: %s fee %d exceeds %d bps", s, bps, domain.BasisPoints)
		}
		out[s] = bps
	}
	return out, nil
}

// OwnerAddress returns the configured owner.
func (m MarketConfig) OwnerAddress() common.Address { return common.HexToAddress(m.Owner) }

// FeeRecipientAddress returns fee_recipient, defaulting to the owner.
func (m MarketConfig) FeeRecipientAddress() common.Address {
	if m.FeeRecipient == "" {
		return m.OwnerAddress()
	}
	return common.HexToAddress(m.FeeRecipient)
}
