package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/assetmarket/internal/blob/s3"
	"github.com/alanyoungcy/assetmarket/internal/cache/redis"
	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/config"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/notify"
	"github.com/alanyoungcy/assetmarket/internal/platform/devchain"
	"github.com/alanyoungcy/assetmarket/internal/server/handler"
	"github.com/alanyoungcy/assetmarket/internal/service"
	"github.com/alanyoungcy/assetmarket/internal/store/memory"
	"github.com/alanyoungcy/assetmarket/internal/store/postgres"
)

// Dependencies bundles what the modes run on. Optional parts are nil when
// their backing service is not configured.
type Dependencies struct {
	Store domain.MarketStore
	Audit domain.AuditStore
	// Bus is Redis when configured and in-process otherwise.
	Bus        domain.SignalBus
	DurableBus bool

	RateLimiter   domain.RateLimiter
	Locks         domain.LockManager
	MetadataCache domain.MetadataCache

	Token  *devchain.Token
	Bank   *devchain.Bank
	Clock  domain.Clock
	Market *service.Marketplace
	Domain crypto.Domain

	Archiver   *s3blob.Archiver
	BlobReader *s3blob.Reader

	Notifier *notify.Notifier
	Probes   map[string]handler.Prober
}

// needsS3 reports whether the mode exports snapshots.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || (cfg.Mode == "full" && cfg.Archive.Enabled)
}

// Wire builds every dependency from cfg. The cleanup function releases them
// in reverse order and must be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Clock:  clock.System{},
		Probes: map[string]handler.Prober{},
	}

	// --- Store ---
	if cfg.Postgres.Enabled() {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Store = postgres.NewMarketStore(pg.Pool())
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.Probes["postgres"] = pg
	} else {
		logger.WarnContext(ctx, "wire: no database configured, market state is kept in memory")
		deps.Store = memory.New()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled() {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Bus = redis.NewSignalBus(rc, redis.WithStreamMaxLen(cfg.Redis.StreamMaxLen))
		deps.DurableBus = true
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.Locks = redis.NewLockManager(rc)
		deps.MetadataCache = redis.NewMetadataCache(rc, cfg.Redis.MetadataTTL.Duration)
		deps.Probes["redis"] = rc
	} else {
		deps.Bus = memory.NewBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- Chain ---
	// Tokens and wallets live in process; there is no on-chain binding.
	deps.Token = devchain.NewToken(common.HexToAddress(cfg.Market.TokenContract))
	deps.Bank = devchain.NewBank()

	fees, err := cfg.Market.Fees()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Market = service.NewMarketplace(deps.Store, devchain.NewDirectory(deps.Token), deps.Bank, deps.Clock, service.Config{
		Owner:           cfg.Market.OwnerAddress(),
		FeeRecipient:    cfg.Market.FeeRecipientAddress(),
		Custodian:       common.HexToAddress(cfg.Market.Custodian),
		DefaultFees:     fees,
		AntiSnipeWindow: cfg.Market.AntiSnipeWindow.Duration,
		RaffleSeed:      []byte(cfg.Market.RaffleSeed),
	}, logger).
		WithSignalBus(deps.Bus).
		WithAuditStore(deps.Audit)
	if deps.MetadataCache != nil {
		deps.Market.WithMetadataCache(deps.MetadataCache)
	}

	deps.Domain = crypto.Domain{
		Name:              cfg.Market.Name,
		Version:           cfg.Market.Version,
		ChainID:           cfg.Market.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Market.Address),
	}

	// --- S3 ---
	if needsS3(cfg) {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.BlobReader = s3blob.NewReader(sc)
		deps.Archiver = s3blob.NewArchiver(deps.Store, s3blob.NewWriter(sc), deps.Audit,
			cfg.Archive.Prefix, cfg.Archive.PartSizeMB<<20)
		deps.Probes["s3"] = sc
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
