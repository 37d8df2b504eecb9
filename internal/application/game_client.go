package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// GameClient is the typed per-account view of the remote application. Every
// call is admitted through the governor first.
type GameClient struct {
	account  string
	initData string
	api      ports.RemoteAPI
	governor *RateGovernor
	cache    *ResponseCache
	clock    ports.Clock
	settings Settings
}

func NewGameClient(account, initData string, api ports.RemoteAPI, governor *RateGovernor, cache *ResponseCache, clock ports.Clock, settings Settings) *GameClient {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &GameClient{
		account:  account,
		initData: initData,
		api:      api,
		governor: governor,
		cache:    cache,
		clock:    clock,
		settings: settings,
	}
}

func (c *GameClient) Account() string {
	return c.account
}

// execute admits the call and retries transient network failures with
// exponential backoff, up to TransientAttempts tries in total.
func (c *GameClient) execute(ctx context.Context, operation string, variables map[string]any) ([]byte, error) {
	attempts := max(c.settings.TransientAttempts, 1)
	delay := c.settings.TransientBackoff

	for attempt := 1; ; attempt++ {
		if c.governor != nil {
			if err := c.governor.Admit(ctx, c.account); err != nil {
				return nil, err
			}
		}

		raw, err := c.api.Execute(ctx, operation, variables)
		if err == nil || attempt >= attempts || ctx.Err() != nil || domain.KindOf(err) != domain.KindTransientNetwork {
			return raw, err
		}

		log.ForAccount(ctx, "game", c.account).Debug().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("transient remote failure, retrying")
		metrics.RecordRemoteRetry(operation)

		if sleepErr := c.clock.Sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
		delay *= 2
	}
}

// Me returns the account profile, served from cache when fresh.
func (c *GameClient) Me(ctx context.Context, useCache bool) (domain.Profile, error) {
	key := cacheKey(cacheClassProfile, c.account)
	if useCache {
		if profile, ok := getCached[domain.Profile](ctx, c.cache, cacheClassProfile, key, c.settings.ProfileTTL); ok {
			return profile, nil
		}
	}

	raw, err := c.execute(ctx, ports.OperationMe, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("query profile: %w", err)
	}
	data, err := decodeData[meData](raw)
	if err != nil || data.Me == nil {
		return domain.Profile{}, fmt.Errorf("query profile: %w", domain.ErrMalformedResponse)
	}

	profile := domain.Profile{
		UserID:       string(data.Me.ID),
		StarsBalance: int64(data.Me.StarsBalance),
		Balance:      int64(data.Me.Balance),
	}
	if next, present := parseRemoteTime(data.Me.NextFreeSpin); present {
		profile.NextFreeSpin = &next
	}

	putCached(ctx, c.cache, key, profile)
	return profile, nil
}

type balanceSnapshot struct {
	StarsBalance int64
	Balance      int64
}

// Balance returns (stars, balance).
func (c *GameClient) Balance(ctx context.Context, useCache bool) (int64, int64, error) {
	key := cacheKey(cacheClassBalance, c.account)
	if useCache {
		if snapshot, ok := getCached[balanceSnapshot](ctx, c.cache, cacheClassBalance, key, c.settings.BalanceTTL); ok {
			return snapshot.StarsBalance, snapshot.Balance, nil
		}
	}

	profile, err := c.Me(ctx, false)
	if err != nil {
		return 0, 0, err
	}

	putCached(ctx, c.cache, key, balanceSnapshot{StarsBalance: profile.StarsBalance, Balance: profile.Balance})
	return profile.StarsBalance, profile.Balance, nil
}

// Spin performs one spin. Rejections the remote explains come back as a
// failed outcome; transport and credential failures come back as errors.
func (c *GameClient) Spin(ctx context.Context, spinType domain.SpinType) (domain.SpinOutcome, error) {
	raw, err := c.execute(ctx, ports.OperationStartSpin, map[string]any{
		"input": map[string]any{"type": string(spinType)},
	})
	if err != nil {
		var remoteErr *domain.RemoteError
		if !errors.As(err, &remoteErr) {
			return domain.SpinOutcome{}, fmt.Errorf("start spin: %w", err)
		}
		switch remoteErr.Code {
		case domain.RemoteCodeUnauthorized, domain.RemoteCodeTransient:
			return domain.SpinOutcome{}, fmt.Errorf("start spin: %w", err)
		}

		detail := remoteErr.Detail
		if detail.Message == "" {
			detail.Message = remoteErr.Message
		}
		return domain.SpinFailed(spinFailureReason(remoteErr), detail), nil
	}

	data, err := decodeData[spinData](raw)
	if err != nil || data.StartRouletteSpin == nil {
		return domain.SpinOutcome{}, fmt.Errorf("start spin: %w", domain.ErrMalformedResponse)
	}
	if !data.StartRouletteSpin.Success {
		return domain.SpinFailed(domain.FailureOther, domain.RemoteDetail{Message: "spin was not successful"}), nil
	}

	var prize *domain.RewardItem
	if data.StartRouletteSpin.Prize != nil {
		item := data.StartRouletteSpin.Prize.toDomain()
		prize = &item
	}
	return domain.SpinSucceeded(prize), nil
}

func spinFailureReason(remoteErr *domain.RemoteError) domain.FailureReason {
	if reason := domain.FailureReasonFor(remoteErr.Code); reason.Correctable() {
		return reason
	}
	if strings.Contains(strings.ToLower(remoteErr.Message), "cooldown") {
		return domain.FailureCooldown
	}
	return domain.FailureOther
}

// Inventory fetches one page. Only the first page (nil cursor) is cached.
func (c *GameClient) Inventory(ctx context.Context, cursor *int64, limit int, useCache bool) (domain.InventoryPage, error) {
	if limit <= 0 {
		limit = c.settings.InventoryPageSize
	}
	if limit <= 0 {
		limit = 50
	}

	key := cacheKey(cacheClassInventory, c.account, strconv.Itoa(limit))
	firstPage := cursor == nil
	if firstPage && useCache {
		if page, ok := getCached[domain.InventoryPage](ctx, c.cache, cacheClassInventory, key, c.settings.InventoryTTL); ok {
			return page, nil
		}
	}

	var from int64
	if cursor != nil {
		from = *cursor
	}

	raw, err := c.execute(ctx, ports.OperationInventory, map[string]any{"cursor": from, "limit": limit})
	if err != nil {
		return domain.InventoryPage{}, fmt.Errorf("query inventory: %w", err)
	}
	data, err := decodeData[inventoryData](raw)
	if err != nil || data.GetRouletteInventory == nil {
		return domain.InventoryPage{}, fmt.Errorf("query inventory: %w", domain.ErrMalformedResponse)
	}
	wire := data.GetRouletteInventory
	if !wire.Success {
		return domain.InventoryPage{}, fmt.Errorf("query inventory: %w: success=false", domain.ErrMalformedResponse)
	}

	page := domain.InventoryPage{HasMore: wire.HasNextPage}
	if wire.NextCursor != nil {
		next := int64(*wire.NextCursor)
		page.NextCursor = &next
	}
	for _, entry := range wire.Prizes {
		reward := entry.Prize.toDomain()
		if reward.Name == "" {
			reward.Name = entry.Name
		}
		unlockAt, _ := parseRemoteTime(entry.UnlockAt)
		page.Items = append(page.Items, domain.InventoryItem{
			UserPrizeID: int64(entry.UserRoulettePrizeID),
			Status:      domain.InventoryStatus(entry.Status),
			Reward:      reward,
			UnlockAt:    unlockAt,
		})
	}

	if firstPage {
		putCached(ctx, c.cache, key, page)
	}
	return page, nil
}

// FullInventory walks every page from the start. The first page may come
// from cache.
func (c *GameClient) FullInventory(ctx context.Context, useCache bool) ([]domain.InventoryItem, error) {
	var (
		items  []domain.InventoryItem
		cursor *int64
	)
	for {
		page, err := c.Inventory(ctx, cursor, 0, useCache)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)

		if !page.HasMore || page.NextCursor == nil || len(page.Items) == 0 {
			return items, nil
		}
		if cursor != nil && *page.NextCursor == *cursor {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

func (c *GameClient) Claim(ctx context.Context, userPrizeID int64) error {
	return c.prizeMutation(ctx, ports.OperationClaimPrize, userPrizeID)
}

func (c *GameClient) Exchange(ctx context.Context, userPrizeID int64) error {
	return c.prizeMutation(ctx, ports.OperationExchangePrize, userPrizeID)
}

func (c *GameClient) prizeMutation(ctx context.Context, operation string, userPrizeID int64) error {
	raw, err := c.execute(ctx, operation, map[string]any{
		"input": map[string]any{"userPrizeId": userPrizeID},
	})
	if err != nil {
		return fmt.Errorf("%s %d: %w", operation, userPrizeID, err)
	}
	return checkMutation(raw, operation)
}

// MarkURLClick registers the link acknowledgement. An empty initData falls
// back to the client's own.
func (c *GameClient) MarkURLClick(ctx context.Context, initData string) error {
	if initData == "" {
		initData = c.initData
	}
	raw, err := c.execute(ctx, ports.OperationMarkURLClick, map[string]any{"initData": initData})
	if err != nil {
		return fmt.Errorf("mark url click: %w", err)
	}
	return checkMutation(raw, ports.OperationMarkURLClick)
}

func (c *GameClient) MarkTunnelClick(ctx context.Context) error {
	raw, err := c.execute(ctx, ports.OperationMarkTunnelClick, nil)
	if err != nil {
		return fmt.Errorf("mark tunnel click: %w", err)
	}
	return checkMutation(raw, ports.OperationMarkTunnelClick)
}

func (c *GameClient) MarkPortalClick(ctx context.Context) error {
	raw, err := c.execute(ctx, ports.OperationMarkPortalClick, nil)
	if err != nil {
		return fmt.Errorf("mark portal click: %w", err)
	}
	return checkMutation(raw, ports.OperationMarkPortalClick)
}

func checkMutation(raw []byte, operation string) error {
	data, err := decodeData[map[string]mutationResult](raw)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, domain.ErrMalformedResponse)
	}
	result, ok := data[operation]
	if !ok {
		return fmt.Errorf("%s: %w", operation, domain.ErrMalformedResponse)
	}
	if result.Success {
		return nil
	}

	message := "success=false"
	if result.Message != nil && *result.Message != "" {
		message = *result.Message
	}
	return fmt.Errorf("%s: %w", operation, &domain.RemoteError{
		Code:    domain.ClassifyRemote("", message),
		Message: message,
	})
}
