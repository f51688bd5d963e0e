package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/nftbazaar/marketd/internal/blob/s3"
	"github.com/nftbazaar/marketd/internal/cache/redis"
	"github.com/nftbazaar/marketd/internal/chain"
	"github.com/nftbazaar/marketd/internal/config"
	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/ledger"
	"github.com/nftbazaar/marketd/internal/metadata"
	"github.com/nftbazaar/marketd/internal/notify"
	"github.com/nftbazaar/marketd/internal/service"
	"github.com/nftbazaar/marketd/internal/storage/ipfs"
	"github.com/nftbazaar/marketd/internal/store/postgres"
	"github.com/nftbazaar/marketd/internal/wallet"
)

// embeddedAccount is the address the embedded ledger backend acts as when
// none is configured. It matches the first dev-chain account most local
// nodes derive, which keeps fixtures recognizable.
const embeddedAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Gateways
	Marketplace domain.Marketplace
	Tokens      domain.TokenLedger
	Storage     domain.StorageGateway
	Watcher     *chain.EventWatcher // nil for the embedded backend

	// Stores
	ListingStore domain.ListingStore
	EventStore   domain.EventStore

	// Caches
	ListingCache  domain.ListingCache
	MetadataCache domain.MetadataCache
	RateLimiter   domain.RateLimiter
	SignalBus     domain.SignalBus

	// Blob storage, nil unless s3 is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Services
	Resolver *metadata.Fetcher
	Market   *service.MarketService
	Accounts *service.AccountService

	// Notifications
	Notifier *notify.Notifier

	// Connectivity checks for the health endpoint.
	Pingers map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: map[string]func(ctx context.Context) error{},
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)
	deps.Pingers["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ListingCache = redis.NewListingCache(redisClient)
	deps.MetadataCache = redis.NewMetadataCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pingers["redis"] = redisClient.Ping

	// --- IPFS ---
	ipfsClient, err := ipfs.New(ipfs.Config{
		APIURL:     cfg.IPFS.APIURL,
		GatewayURL: cfg.IPFS.GatewayURL,
		Timeout:    cfg.IPFS.Timeout.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ipfs: %w", err)
	}
	deps.Storage = ipfsClient

	// --- Marketplace backend ---
	if err := wireMarketBackend(ctx, cfg, deps, &closers, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.EventStore, deps.ListingStore)
	}

	// --- Services ---
	httpClient := &http.Client{Timeout: cfg.Metadata.FetchTimeout.Duration}
	deps.Resolver = metadata.NewFetcher(deps.MetadataCache, logger,
		metadata.WithHTTPClient(httpClient),
		metadata.WithConcurrency(cfg.Metadata.Concurrency),
	)
	deps.Market = service.NewMarketService(
		deps.Marketplace, deps.Tokens, deps.Storage, deps.Resolver, deps.ListingCache, logger,
	)
	deps.Accounts = service.NewAccountService(deps.ListingStore, deps.Tokens, deps.Resolver, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireMarketBackend connects the on-chain gateways, or stands up the
// in-process ledger when the embedded backend is selected.
func wireMarketBackend(
	ctx context.Context,
	cfg *config.Config,
	deps *Dependencies,
	closers *[]func(),
	logger *slog.Logger,
) error {
	if cfg.Chain.Backend == "embedded" {
		feeWei, err := service.EtherToWei(cfg.Chain.EmbeddedListingFeeEther)
		if err != nil {
			return fmt.Errorf("wire: embedded listing fee: %w", err)
		}
		account := cfg.Chain.EmbeddedAccount
		if account == "" {
			account = embeddedAccount
		}

		book := ledger.NewTokenBook()
		market := ledger.New(feeWei, account)
		market.BindCustody(book)
		deps.Marketplace = ledger.NewSession(market, account)
		deps.Tokens = ledger.NewTokenSession(book, account)

		logger.InfoContext(ctx, "using embedded marketplace ledger",
			slog.String("account", account),
			slog.String("listing_fee_ether", cfg.Chain.EmbeddedListingFeeEther),
		)
		return nil
	}

	w, err := wallet.Load(wallet.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrWalletUnavailable) {
			return fmt.Errorf("wire: wallet: %w", err)
		}
		// No key configured: reads still work, writes will surface
		// ErrWalletUnavailable to callers.
		logger.WarnContext(ctx, "no wallet configured, mint and purchase disabled")
		w = nil
	}

	rpcClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("wire: chain rpc: %w", err)
	}
	*closers = append(*closers, rpcClient.Close)

	if got := rpcClient.ChainID().Int64(); got != cfg.Chain.ChainID {
		return fmt.Errorf("wire: chain id mismatch: node reports %d, config expects %d", got, cfg.Chain.ChainID)
	}

	market, err := chain.NewMarketplace(rpcClient, cfg.Chain.MarketplaceAddress, cfg.Chain.TokenAddress, w)
	if err != nil {
		return fmt.Errorf("wire: marketplace binding: %w", err)
	}
	tokens, err := chain.NewTokenLedger(rpcClient, cfg.Chain.TokenAddress, w)
	if err != nil {
		return fmt.Errorf("wire: token binding: %w", err)
	}
	deps.Marketplace = market
	deps.Tokens = tokens

	// Log subscriptions need a WebSocket transport, so the watcher gets
	// its own connection.
	if cfg.Chain.WSURL != "" {
		wsClient, err := chain.Dial(ctx, cfg.Chain.WSURL)
		if err != nil {
			return fmt.Errorf("wire: chain ws: %w", err)
		}
		*closers = append(*closers, wsClient.Close)

		wsMarket, err := chain.NewMarketplace(wsClient, cfg.Chain.MarketplaceAddress, cfg.Chain.TokenAddress, nil)
		if err != nil {
			return fmt.Errorf("wire: marketplace ws binding: %w", err)
		}
		deps.Watcher = chain.NewEventWatcher(wsMarket, logger)
	}

	return nil
}
