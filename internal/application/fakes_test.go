package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

const testAppURL = "https://t.me/spinbot/app"

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type memoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry[[]byte]
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{entries: map[string]domain.CacheEntry[[]byte]{}}
}

func (s *memoryCacheStore) Load(_ context.Context, key string) (domain.CacheEntry[[]byte], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *memoryCacheStore) Store(_ context.Context, key string, entry domain.CacheEntry[[]byte]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

type fakeCredentials struct {
	names []string
	blobs map[string][]byte
}

func newFakeCredentials(names ...string) *fakeCredentials {
	blobs := make(map[string][]byte, len(names))
	for _, name := range names {
		blobs[name] = []byte("blob-" + name)
	}
	return &fakeCredentials{names: names, blobs: blobs}
}

func (c *fakeCredentials) List(context.Context) ([]string, error) {
	return append([]string(nil), c.names...), nil
}

func (c *fakeCredentials) Get(_ context.Context, name string) ([]byte, error) {
	blob, ok := c.blobs[name]
	if !ok || len(blob) == 0 {
		return nil, fmt.Errorf("credential %s: %w", name, domain.ErrCredentialNotFound)
	}
	return blob, nil
}

func (c *fakeCredentials) Put(_ context.Context, name string, blob []byte) error {
	c.blobs[name] = blob
	return nil
}

func (c *fakeCredentials) Delete(_ context.Context, name string) error {
	delete(c.blobs, name)
	return nil
}

type fakeSession struct {
	name string

	mu            sync.Mutex
	connectErrs   []error
	authorized    bool
	returnURL     string
	viewErr       error
	inviteErr     error
	panicOnJoin   bool
	connects      int
	disconnects   int
	startCommands int
	views         []string
	joinedInvites []string
	joinedHandles []string

	connectHook func()
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{
		name:       name,
		authorized: true,
		returnURL:  "https://app.example/#tgWebAppData=" + url.QueryEscape("user=" + name + "&hash=abc") + "&tgWebAppVersion=7.0",
	}
}

func (s *fakeSession) Connect(context.Context) error {
	if s.connectHook != nil {
		s.connectHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		return err
	}
	return nil
}

func (s *fakeSession) IsAuthorized(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized, nil
}

func (s *fakeSession) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *fakeSession) JoinChannelByHandle(_ context.Context, handle string) error {
	if s.panicOnJoin {
		panic("join exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinedHandles = append(s.joinedHandles, handle)
	return nil
}

func (s *fakeSession) JoinChannelByInvite(_ context.Context, token string) error {
	if s.panicOnJoin {
		panic("join exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inviteErr != nil {
		return s.inviteErr
	}
	s.joinedInvites = append(s.joinedInvites, token)
	return nil
}

func (s *fakeSession) OpenEmbeddedView(_ context.Context, link string) (ports.EmbeddedView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, link)
	if s.viewErr != nil {
		return ports.EmbeddedView{}, s.viewErr
	}
	return ports.EmbeddedView{ReturnURL: s.returnURL}, nil
}

func (s *fakeSession) SendRawStartCommand(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCommands++
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	dials    atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sessions: map[string]*fakeSession{}}
}

func (d *fakeDialer) session(name string) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[name]
	if !ok {
		session = newFakeSession(name)
		d.sessions[name] = session
	}
	return session
}

func (d *fakeDialer) Dial(_ context.Context, account domain.Account, credential []byte) (ports.AccountSession, error) {
	if len(credential) == 0 {
		return nil, domain.ErrCredentialNotFound
	}
	d.dials.Add(1)
	return d.session(account.Name), nil
}

type invFixture struct {
	ID           int64
	Status       domain.InventoryStatus
	Name         string
	Price        int64
	Claimable    bool
	Exchangeable bool
}

func credit(id int64, name string) invFixture {
	return invFixture{ID: id, Status: domain.InventoryStatusNone, Name: name, Claimable: true}
}

func gift(id int64, name string, price int64) invFixture {
	return invFixture{ID: id, Status: domain.InventoryStatusInProgress, Name: name, Price: price, Claimable: true, Exchangeable: true}
}

// fakeGame is an in-memory remote application for one account.
type fakeGame struct {
	mu sync.Mutex

	stars        int64
	balance      int64
	nextFreeSpin string
	meErr        error

	spinErrs  []error
	prizeName string
	prizeCost int64

	inventory    []invFixture
	claimErrs    map[int64][]error
	exchangeErrs map[int64][]error
	markErr      error

	calls     map[string]int
	claimed   []int64
	exchanged []int64
	initData  []string
}

func newFakeGame() *fakeGame {
	return &fakeGame{
		stars:        500,
		balance:      40,
		prizeName:    "3 Stars",
		claimErrs:    map[int64][]error{},
		exchangeErrs: map[int64][]error{},
		calls:        map[string]int{},
	}
}

func (g *fakeGame) Calls(operation string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[operation]
}

func (g *fakeGame) Execute(_ context.Context, operation string, variables map[string]any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[operation]++

	switch operation {
	case ports.OperationMe:
		if g.meErr != nil {
			return nil, g.meErr
		}
		me := map[string]any{"id": 4242, "starsBalance": g.stars, "balance": fmt.Sprint(g.balance), "nextFreeSpin": nil}
		if g.nextFreeSpin != "" {
			me["nextFreeSpin"] = g.nextFreeSpin
		}
		return marshalData(map[string]any{"me": me})

	case ports.OperationStartSpin:
		if len(g.spinErrs) > 0 {
			err := g.spinErrs[0]
			g.spinErrs = g.spinErrs[1:]
			return nil, err
		}
		prize := map[string]any{"id": "p1", "name": g.prizeName, "exchangePrice": g.prizeCost, "isClaimable": true, "isExchangeable": true}
		return marshalData(map[string]any{"startRouletteSpin": map[string]any{"success": true, "prize": prize}})

	case ports.OperationInventory:
		cursor := int(variables["cursor"].(int64))
		limit := variables["limit"].(int)
		end := min(cursor+limit, len(g.inventory))
		prizes := make([]map[string]any, 0, end-cursor)
		for _, item := range g.inventory[cursor:end] {
			prizes = append(prizes, map[string]any{
				"userRoulettePrizeId": item.ID,
				"status":              string(item.Status),
				"name":                item.Name,
				"prize": map[string]any{
					"id":             fmt.Sprint(item.ID),
					"name":           item.Name,
					"exchangePrice":  item.Price,
					"isClaimable":    item.Claimable,
					"isExchangeable": item.Exchangeable,
				},
			})
		}
		return marshalData(map[string]any{"getRouletteInventory": map[string]any{
			"success":     true,
			"prizes":      prizes,
			"nextCursor":  end,
			"hasNextPage": end < len(g.inventory),
		}})

	case ports.OperationClaimPrize, ports.OperationExchangePrize:
		id := variables["input"].(map[string]any)["userPrizeId"].(int64)
		errs := g.claimErrs
		status := domain.InventoryStatusClaimed
		if operation == ports.OperationExchangePrize {
			errs = g.exchangeErrs
			status = domain.InventoryStatusExchanged
		}
		if pending := errs[id]; len(pending) > 0 {
			errs[id] = pending[1:]
			return nil, pending[0]
		}
		for i := range g.inventory {
			if g.inventory[i].ID == id {
				g.inventory[i].Status = status
			}
		}
		if operation == ports.OperationExchangePrize {
			g.exchanged = append(g.exchanged, id)
		} else {
			g.claimed = append(g.claimed, id)
		}
		return marshalData(map[string]any{operation: map[string]any{"success": true}})

	case ports.OperationMarkURLClick, ports.OperationMarkTunnelClick, ports.OperationMarkPortalClick:
		if g.markErr != nil {
			return nil, g.markErr
		}
		if initData, ok := variables["initData"].(string); ok {
			g.initData = append(g.initData, initData)
		}
		return marshalData(map[string]any{operation: map[string]any{"success": true}})
	}

	return nil, fmt.Errorf("unexpected operation %q", operation)
}

func marshalData(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

type fakeRemote struct {
	mu    sync.Mutex
	games map[string]*fakeGame
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{games: map[string]*fakeGame{}}
}

func (r *fakeRemote) game(name string) *fakeGame {
	r.mu.Lock()
	defer r.mu.Unlock()
	game, ok := r.games[name]
	if !ok {
		game = newFakeGame()
		r.games[name] = game
	}
	return game
}

func (r *fakeRemote) ForAccount(account string, _ string) ports.RemoteAPI {
	return r.game(account)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeLedger struct {
	mu   sync.Mutex
	runs []domain.BatchRun
}

func (l *fakeLedger) Record(_ context.Context, run domain.BatchRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *fakeLedger) Recent(_ context.Context, limit int) ([]domain.BatchRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > len(l.runs) {
		limit = len(l.runs)
	}
	return append([]domain.BatchRun(nil), l.runs[len(l.runs)-limit:]...), nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func newFakeAccounts(accounts ...domain.Account) *fakeAccounts {
	repo := &fakeAccounts{accounts: map[string]domain.Account{}}
	for _, account := range accounts {
		repo.accounts[account.Name] = account
	}
	return repo
}

func (r *fakeAccounts) GetByName(_ context.Context, name string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[name]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *fakeAccounts) List(context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeAccounts) Save(ctx context.Context, account domain.Account) error {
	return r.SaveAll(ctx, []domain.Account{account})
}

func (r *fakeAccounts) SaveAll(_ context.Context, accounts []domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range accounts {
		r.accounts[account.Name] = account
	}
	return nil
}

type testEnv struct {
	clock    *fakeClock
	dialer   *fakeDialer
	remote   *fakeRemote
	notifier *fakeNotifier
	ledger   *fakeLedger
	accounts *fakeAccounts
	store    *memoryCacheStore
}

func newTestRuntime(t *testing.T, names ...string) (*Runtime, *testEnv) {
	t.Helper()
	return newTestRuntimeWith(t, DefaultPoolConfig(), GovernorConfig{}, testSettings(), names...)
}

func newTestRuntimeWith(t *testing.T, pool PoolConfig, governor GovernorConfig, settings Settings, names ...string) (*Runtime, *testEnv) {
	t.Helper()

	env := &testEnv{
		clock:    newFakeClock(),
		dialer:   newFakeDialer(),
		remote:   newFakeRemote(),
		notifier: &fakeNotifier{},
		ledger:   &fakeLedger{},
		accounts: newFakeAccounts(),
		store:    newMemoryCacheStore(),
	}

	rt := NewRuntime(RuntimeDeps{
		Credentials: newFakeCredentials(names...),
		Dialer:      env.dialer,
		CacheStore:  env.store,
		Remote:      env.remote,
		Notifier:    env.notifier,
		Ledger:      env.ledger,
		Accounts:    env.accounts,
		Clock:       env.clock,
	}, pool, governor, settings)

	if _, err := rt.Pool.Load(context.Background()); err != nil {
		t.Fatalf("load pool: %v", err)
	}
	return rt, env
}

func testSettings() Settings {
	settings := DefaultSettings()
	settings.AppURL = testAppURL
	return settings
}

func remoteErr(code domain.RemoteCode, message string, detail domain.RemoteDetail) error {
	return &domain.RemoteError{Code: code, Message: message, Detail: detail}
}

var errBoom = errors.New("boom")
