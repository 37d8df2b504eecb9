package application

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

type PoolConfig struct {
	ConstructLimit int
	ValidateLimit  int
	ConnectTimeout time.Duration
	ValidityTTL    time.Duration
	// JitterBase and LockedRetryBase are the fixed parts of the per-account
	// construction delays; the per-name hash adds up to 100ms and 900ms.
	JitterBase      time.Duration
	LockedRetryBase time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ConstructLimit:  5,
		ValidateLimit:   15,
		ConnectTimeout:  20 * time.Second,
		ValidityTTL:     5 * time.Minute,
		JitterBase:      100 * time.Millisecond,
		LockedRetryBase: 500 * time.Millisecond,
	}
}

// SessionPool owns at most one live session per account. Construction is
// bounded by a semaphore since session backends share a credential store
// that does not tolerate many concurrent opens.
type SessionPool struct {
	credentials ports.CredentialStore
	dialer      ports.SessionDialer
	cache       *ResponseCache
	clock       ports.Clock
	cfg         PoolConfig
	construct   *semaphore.Weighted

	mu       sync.Mutex
	names    []string
	sessions map[string]ports.AccountSession
	locks    map[string]*sync.Mutex
}

func NewSessionPool(credentials ports.CredentialStore, dialer ports.SessionDialer, cache *ResponseCache, clock ports.Clock, cfg PoolConfig) *SessionPool {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	defaults := DefaultPoolConfig()
	if cfg.ConstructLimit <= 0 {
		cfg.ConstructLimit = defaults.ConstructLimit
	}
	if cfg.ValidateLimit <= 0 {
		cfg.ValidateLimit = defaults.ValidateLimit
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ValidityTTL <= 0 {
		cfg.ValidityTTL = defaults.ValidityTTL
	}

	return &SessionPool{
		credentials: credentials,
		dialer:      dialer,
		cache:       cache,
		clock:       clock,
		cfg:         cfg,
		construct:   semaphore.NewWeighted(int64(cfg.ConstructLimit)),
		sessions:    map[string]ports.AccountSession{},
		locks:       map[string]*sync.Mutex{},
	}
}

// Load refreshes the known account names from the credential store and
// returns how many there are. Live sessions are kept.
func (p *SessionPool) Load(ctx context.Context) (int, error) {
	names, err := p.credentials.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list credentials: %w", err)
	}

	p.mu.Lock()
	p.names = append([]string(nil), names...)
	p.mu.Unlock()

	logger := log.FromContext(ctx, "session_pool")
	logger.Debug().Int("accounts", len(names)).Msg("credentials loaded")
	return len(names), nil
}

// Names returns the loaded account names in credential store order.
func (p *SessionPool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.names...)
}

func (p *SessionPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// GetOrCreate returns the live session for name, constructing and
// authorizing one if needed.
func (p *SessionPool) GetOrCreate(ctx context.Context, name string) (ports.AccountSession, error) {
	lock := p.accountLock(name)
	lock.Lock()
	defer lock.Unlock()

	if session, ok := p.live(name); ok {
		return session, nil
	}

	if err := p.construct.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire construct slot: %w", err)
	}
	defer p.construct.Release(1)

	if err := p.clock.Sleep(ctx, p.jitter(name)); err != nil {
		return nil, err
	}

	logger := log.ForAccount(ctx, "session_pool", name)
	session, err := p.open(ctx, name)
	if err != nil && domain.IsStoreLocked(err) {
		delay := p.lockedRetryDelay(name)
		logger.Warn().Dur("retry_in", delay).Msg("credential store locked, retrying once")
		if sleepErr := p.clock.Sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
		session, err = p.open(ctx, name)
	}
	if err != nil {
		sessionErr := classifySessionError(name, err)
		metrics.RecordSessionConstruct(string(sessionErr.Kind))
		logger.Warn().Err(err).Str("kind", string(sessionErr.Kind)).Msg("session construction failed")
		return nil, sessionErr
	}

	p.mu.Lock()
	p.sessions[name] = session
	live := len(p.sessions)
	p.mu.Unlock()

	metrics.RecordSessionConstruct("ok")
	metrics.SetLiveSessions(live)
	logger.Debug().Msg("session ready")
	return session, nil
}

func (p *SessionPool) open(ctx context.Context, name string) (ports.AccountSession, error) {
	credential, err := p.credentials.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	session, err := p.dialer.Dial(ctx, domain.Account{Name: name, CredentialRef: domain.CredentialFileName(name)}, credential)
	if err != nil {
		return nil, fmt.Errorf("dial session: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	if err := session.Connect(connectCtx); err != nil {
		return nil, err
	}

	authorized, err := session.IsAuthorized(connectCtx)
	if err != nil || !authorized {
		_ = session.Disconnect(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("check authorization: %w", err)
		}
		return nil, &domain.ConnectError{Kind: domain.ConnectUnauthorized, Message: "session is not authorized"}
	}

	return session, nil
}

func classifySessionError(name string, err error) *domain.SessionError {
	var existing *domain.SessionError
	if errors.As(err, &existing) {
		return existing
	}

	kind := domain.SessionUnauthenticated
	switch {
	case errors.Is(err, domain.ErrCredentialNotFound):
		kind = domain.SessionCredentialMissing
	case domain.IsStoreLocked(err):
		kind = domain.SessionStoreContention
	}

	return &domain.SessionError{Kind: kind, Account: name, Err: err}
}

// Release tears down the session for name so the next GetOrCreate builds a
// fresh one.
func (p *SessionPool) Release(ctx context.Context, name string) {
	p.mu.Lock()
	session, ok := p.sessions[name]
	delete(p.sessions, name)
	live := len(p.sessions)
	p.mu.Unlock()

	if !ok {
		return
	}
	metrics.SetLiveSessions(live)

	if err := session.Disconnect(ctx); err != nil {
		logger := log.ForAccount(ctx, "session_pool", name)
		logger.Debug().Err(err).Msg("disconnect on release failed")
	}
}

// CloseAll disconnects every live session. Disconnect errors are logged and
// otherwise ignored.
func (p *SessionPool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = map[string]ports.AccountSession{}
	p.mu.Unlock()

	logger := log.FromContext(ctx, "session_pool")
	for name, session := range sessions {
		if err := session.Disconnect(ctx); err != nil {
			logger.Debug().Err(err).Str("account", name).Msg("disconnect failed")
		}
	}
	metrics.SetLiveSessions(0)
	logger.Debug().Int("closed", len(sessions)).Msg("sessions closed")
}

// Validate reports whether name can produce an authorized session. Definite
// answers are cached for the validity ttl; failures that say nothing about the
// credential (timeouts, store contention) are not.
func (p *SessionPool) Validate(ctx context.Context, name string, useCache bool) bool {
	key := cacheKey(cacheClassValidity, name)
	if useCache {
		if valid, ok := getCached[bool](ctx, p.cache, cacheClassValidity, key, p.cfg.ValidityTTL); ok {
			return valid
		}
	}

	session, err := p.GetOrCreate(ctx, name)
	if err == nil {
		var authorized bool
		authorized, err = session.IsAuthorized(ctx)
		if err == nil && !authorized {
			err = &domain.ConnectError{Kind: domain.ConnectUnauthorized, Message: "session is not authorized"}
		}
		if err != nil {
			p.Release(ctx, name)
		}
	}

	if err != nil && domain.KindOf(err) != domain.KindCredentialInvalid {
		logger := log.ForAccount(ctx, "session_pool", name)
		logger.Debug().Err(err).Msg("validation inconclusive, not cached")
		return false
	}

	valid := err == nil
	putCached(ctx, p.cache, key, valid)
	return valid
}

// ValidateAll checks every loaded account with bounded concurrency.
func (p *SessionPool) ValidateAll(ctx context.Context, useCache bool) (int, int) {
	names := p.Names()
	results := make([]bool, len(names))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.ValidateLimit)
	for i, name := range names {
		group.Go(func() error {
			results[i] = p.Validate(groupCtx, name, useCache)
			return nil
		})
	}
	_ = group.Wait()

	valid := 0
	for _, ok := range results {
		if ok {
			valid++
		}
	}
	return valid, len(names) - valid
}

func (p *SessionPool) live(name string) (ports.AccountSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[name]
	return session, ok
}

func (p *SessionPool) accountLock(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[name] = lock
	}
	return lock
}

func (p *SessionPool) jitter(name string) time.Duration {
	return p.cfg.JitterBase + time.Duration(nameHash(name)%100)*time.Millisecond
}

func (p *SessionPool) lockedRetryDelay(name string) time.Duration {
	return p.cfg.LockedRetryBase + time.Duration(nameHash(name)%10)*100*time.Millisecond
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
