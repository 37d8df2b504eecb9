package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	memorycache "github.com/bnema/spin-accounts-cli/internal/adapters/cache/memory"
	rediscache "github.com/bnema/spin-accounts-cli/internal/adapters/cache/redis"
	credfile "github.com/bnema/spin-accounts-cli/internal/adapters/credentials/file"
	sqliteledger "github.com/bnema/spin-accounts-cli/internal/adapters/ledger/sqlite"
	"github.com/bnema/spin-accounts-cli/internal/adapters/notify"
	"github.com/bnema/spin-accounts-cli/internal/adapters/notify/telegram"
	"github.com/bnema/spin-accounts-cli/internal/adapters/remote/graphql"
	"github.com/bnema/spin-accounts-cli/internal/adapters/render/report"
	tomlrepo "github.com/bnema/spin-accounts-cli/internal/adapters/repo/toml"
	"github.com/bnema/spin-accounts-cli/internal/adapters/session/gateway"
	"github.com/bnema/spin-accounts-cli/internal/application"
	"github.com/bnema/spin-accounts-cli/internal/config"
	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

const ledgerBusyTimeout = 5 * time.Second

type app struct {
	cfg         config.Config
	repo        *tomlrepo.Repository
	credentials *credfile.Store
	accounts    *application.AccountService
	renderRun   func(domain.BatchRun, report.RenderOptions) (string, error)
	httpClient  *http.Client
	now         func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Console: true})

	repo, err := tomlrepo.NewRepository(cfg.Paths.Accounts)
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}
	credentials := credfile.NewStore(cfg.Paths.SessionsDir)

	return &app{
		cfg:         cfg,
		repo:        repo,
		credentials: credentials,
		accounts:    application.NewAccountService(repo, credentials, ports.SystemClock{}),
		renderRun:   report.RenderRun,
		httpClient:  http.DefaultClient,
		now:         time.Now,
	}, nil
}

// engine is the part of the app that holds connections: sessions, cache
// backend, ledger and notifier. Commands open it on demand and close it when
// done.
type engine struct {
	rt      *application.Runtime
	batches *application.BatchCoordinator
	ledger  *sqliteledger.Ledger
	closers []func() error
}

func (a *app) openEngine(ctx context.Context) (*engine, error) {
	if err := a.credentials.EnsureRoot(); err != nil {
		return nil, err
	}

	eng := &engine{}
	cacheStore, err := a.openCacheStore(ctx, eng)
	if err != nil {
		return nil, err
	}

	ledger, err := sqliteledger.Open(a.cfg.Paths.Ledger, ledgerBusyTimeout)
	if err != nil {
		eng.closeAll()
		return nil, fmt.Errorf("wire ledger: %w", err)
	}
	eng.ledger = ledger
	eng.closers = append(eng.closers, ledger.Close)

	notifier, err := a.notifier()
	if err != nil {
		eng.closeAll()
		return nil, fmt.Errorf("wire notifier: %w", err)
	}

	eng.rt = application.NewRuntime(
		application.RuntimeDeps{
			Credentials: a.credentials,
			Dialer: gateway.Dialer{
				BaseURL:        a.cfg.Gateway.BaseURL,
				HTTPClient:     a.httpClient,
				RequestTimeout: a.cfg.Gateway.Timeout,
			},
			CacheStore: cacheStore,
			Remote: graphql.Factory{
				Endpoint:       a.cfg.Remote.GraphQLURL,
				RefCode:        a.cfg.Remote.RefCode,
				HTTPClient:     a.httpClient,
				RequestTimeout: a.cfg.Remote.Timeout,
			},
			Notifier: notifier,
			Ledger:   ledger,
			Accounts: a.repo,
			Clock:    ports.SystemClock{},
		},
		poolConfig(a.cfg),
		application.GovernorConfig{
			MinInterval:  a.cfg.Governor.MinInterval,
			MaxWorkflows: a.cfg.Governor.MaxWorkflows,
		},
		settingsFromConfig(a.cfg),
	)
	eng.batches = application.NewBatchCoordinator(eng.rt)

	if _, err := eng.rt.Pool.Load(ctx); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	return eng, nil
}

func (a *app) openCacheStore(ctx context.Context, eng *engine) (ports.CacheStore, error) {
	if a.cfg.Cache.Backend != config.CacheBackendRedis {
		return memorycache.NewStore(), nil
	}

	store, err := rediscache.NewStore(ctx, rediscache.Config{
		Addr:      a.cfg.Cache.RedisAddr,
		DB:        a.cfg.Cache.RedisDB,
		Retention: a.cfg.Cache.ValidityTTL,
	}, log.WithComponent("cache"))
	if err != nil {
		return nil, fmt.Errorf("wire redis cache: %w", err)
	}
	eng.closers = append(eng.closers, store.Close)

	return store, nil
}

func (a *app) notifier() (ports.Notifier, error) {
	if a.cfg.Notify.TelegramToken == "" {
		return notify.Log{Logger: log.WithComponent("notify")}, nil
	}

	return telegram.New(telegram.Config{
		Token:      a.cfg.Notify.TelegramToken,
		ChatID:     a.cfg.Notify.TelegramChatID,
		HTTPClient: a.httpClient,
	})
}

// Close releases every live session, then the backing stores.
func (e *engine) Close(ctx context.Context) error {
	if e.rt != nil {
		e.rt.Pool.CloseAll(ctx)
	}
	return e.closeAll()
}

func (e *engine) closeAll() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func poolConfig(cfg config.Config) application.PoolConfig {
	pool := application.DefaultPoolConfig()
	pool.ConstructLimit = cfg.Pool.ConstructLimit
	pool.ValidateLimit = cfg.Pool.ValidateLimit
	pool.ConnectTimeout = cfg.Pool.ConnectTimeout
	if cfg.Cache.ValidityTTL > 0 {
		pool.ValidityTTL = cfg.Cache.ValidityTTL
	}
	return pool
}

func settingsFromConfig(cfg config.Config) application.Settings {
	settings := application.DefaultSettings()
	settings.AppURL = cfg.Remote.AppURL
	settings.BotRef = cfg.Remote.BotRef
	settings.StartPayload = cfg.Remote.RefCode
	settings.TransientAttempts = cfg.Remote.RetryAttempts
	settings.TransientBackoff = cfg.Remote.RetryBackoff

	settings.ReserveFloor = cfg.Reward.ReserveFloor
	settings.HighValueThreshold = cfg.Reward.HighValueThreshold
	settings.ExchangeThreshold = cfg.Reward.ExchangeThreshold
	settings.ExchangeAfterSpin = cfg.Reward.ExchangeAfterSpin
	settings.ExchangeOnBalanceCheck = cfg.Reward.ExchangeOnBalanceCheck

	if spinType, err := domain.ParseSpinType(cfg.PaidSpin.Type); err == nil {
		settings.PaidSpinType = spinType
	}
	settings.PaidSpinMinStars = cfg.PaidSpin.MinStars

	settings.ProfileTTL = cfg.Cache.ProfileTTL
	settings.BalanceTTL = cfg.Cache.BalanceTTL
	settings.InventoryTTL = cfg.Cache.InventoryTTL
	settings.BalanceBatchSize = cfg.Batch.BalanceBatchSize
	settings.ProgressInterval = cfg.Batch.ProgressInterval

	return settings
}
