package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// Runtime bundles the shared components one process uses. Workflows receive
// it explicitly; nothing in this package keeps process-wide state.
type Runtime struct {
	Pool       *SessionPool
	Governor   *RateGovernor
	Cache      *ResponseCache
	Resolver   *PrerequisiteResolver
	Liquidator *InventoryLiquidator
	Remote     ports.RemoteFactory
	Notifier   ports.Notifier
	Ledger     ports.ResultLedger
	Accounts   ports.AccountRepository
	Clock      ports.Clock
	Settings   Settings

	mu       sync.Mutex
	excluded map[string]struct{}
}

type RuntimeDeps struct {
	Credentials ports.CredentialStore
	Dialer      ports.SessionDialer
	CacheStore  ports.CacheStore
	Remote      ports.RemoteFactory
	Notifier    ports.Notifier
	Ledger      ports.ResultLedger
	Accounts    ports.AccountRepository
	Clock       ports.Clock
}

// NewRuntime wires the engine components from their adapters.
func NewRuntime(deps RuntimeDeps, pool PoolConfig, governor GovernorConfig, settings Settings) *Runtime {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	cache := NewResponseCache(deps.CacheStore, clock)
	resolver := NewPrerequisiteResolver(clock, settings.SettleAfterJoin)

	return &Runtime{
		Pool:       NewSessionPool(deps.Credentials, deps.Dialer, cache, clock, pool),
		Governor:   NewRateGovernor(governor.MinInterval, governor.MaxWorkflows, clock),
		Cache:      cache,
		Resolver:   resolver,
		Liquidator: NewInventoryLiquidator(resolver, clock, settings),
		Remote:     deps.Remote,
		Notifier:   deps.Notifier,
		Ledger:     deps.Ledger,
		Accounts:   deps.Accounts,
		Clock:      clock,
		Settings:   settings,
	}
}

type GovernorConfig struct {
	MinInterval  time.Duration
	MaxWorkflows int
}

// Client opens the account's session, obtains init data from the app view
// and returns a typed client for the remote application.
func (rt *Runtime) Client(ctx context.Context, name string) (*GameClient, ports.AccountSession, error) {
	if err := rt.Governor.Admit(ctx, name); err != nil {
		return nil, nil, err
	}

	session, err := rt.Pool.GetOrCreate(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	if rt.Settings.BotRef != "" && rt.Settings.StartPayload != "" {
		if err := session.SendRawStartCommand(ctx, rt.Settings.BotRef, rt.Settings.StartPayload); err != nil {
			logger := log.ForAccount(ctx, "runtime", name)
			logger.Debug().Err(err).Msg("start command failed")
		}
	}

	if rt.Settings.AppURL == "" {
		return nil, session, errors.New("app url is not configured")
	}
	view, err := session.OpenEmbeddedView(ctx, rt.Settings.AppURL)
	if err != nil {
		return nil, session, fmt.Errorf("open app view: %w", err)
	}
	initData, err := InitDataFromURL(view.ReturnURL)
	if err != nil {
		return nil, session, fmt.Errorf("open app view: %w", err)
	}

	api := rt.Remote.ForAccount(name, initData)
	return NewGameClient(name, initData, api, rt.Governor, rt.Cache, rt.Clock, rt.Settings), session, nil
}

// Exclude keeps name out of later passes until the credentials are reloaded
// or a validation finds the account healthy again.
func (rt *Runtime) Exclude(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.excluded == nil {
		rt.excluded = map[string]struct{}{}
	}
	rt.excluded[name] = struct{}{}
}

func (rt *Runtime) Readmit(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.excluded, name)
}

func (rt *Runtime) Excluded(name string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.excluded[name]
	return ok
}

// Admitted filters out excluded names, keeping order.
func (rt *Runtime) Admitted(names []string) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := rt.excluded[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Reload re-reads the credential directory and forgets every exclusion.
func (rt *Runtime) Reload(ctx context.Context) (int, error) {
	rt.mu.Lock()
	rt.excluded = nil
	rt.mu.Unlock()
	return rt.Pool.Load(ctx)
}

func (rt *Runtime) notify(ctx context.Context, message string) {
	if rt.Notifier == nil {
		return
	}
	if err := rt.Notifier.Notify(ctx, message); err != nil {
		logger := log.FromContext(ctx, "runtime")
		logger.Warn().Err(err).Msg("notification failed")
	}
}
