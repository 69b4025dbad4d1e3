package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env when present
// and applies MARKET_* overrides. An empty path skips the file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets at deploy time without
// touching the TOML file. Empty variables are ignored.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Name, "MARKET_MARKET_NAME")
	setStr(&cfg.Market.Version, "MARKET_MARKET_VERSION")
	setInt64(&cfg.Market.ChainID, "MARKET_MARKET_CHAIN_ID")
	setStr(&cfg.Market.Address, "MARKET_MARKET_ADDRESS")
	setStr(&cfg.Market.Owner, "MARKET_MARKET_OWNER")
	setStr(&cfg.Market.FeeRecipient, "MARKET_MARKET_FEE_RECIPIENT")
	setStr(&cfg.Market.Custodian, "MARKET_MARKET_CUSTODIAN")
	setStr(&cfg.Market.TokenContract, "MARKET_MARKET_TOKEN_CONTRACT")
	setDuration(&cfg.Market.AntiSnipeWindow, "MARKET_MARKET_ANTI_SNIPE_WINDOW")
	setStr(&cfg.Market.RaffleSeed, "MARKET_MARKET_RAFFLE_SEED")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARKET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARKET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARKET_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "MARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKET_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "MARKET_ARCHIVE_CRON")
	setStr(&cfg.Archive.Prefix, "MARKET_ARCHIVE_PREFIX")
	setInt(&cfg.Archive.Keep, "MARKET_ARCHIVE_KEEP")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "MARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MARKET_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.MaxSkew, "MARKET_SERVER_MAX_SKEW")
	setBool(&cfg.Server.DevEndpoints, "MARKET_SERVER_DEV_ENDPOINTS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKET_MODE")
	setStr(&cfg.LogLevel, "MARKET_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
