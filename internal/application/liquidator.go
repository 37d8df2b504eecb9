package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// InventoryClient is the remote surface the liquidator needs.
type InventoryClient interface {
	AckRegistrar
	Account() string
	FullInventory(ctx context.Context, useCache bool) ([]domain.InventoryItem, error)
	Claim(ctx context.Context, userPrizeID int64) error
	Exchange(ctx context.Context, userPrizeID int64) error
}

var _ InventoryClient = (*GameClient)(nil)

// InventoryLiquidator turns inventory items into balance.
type InventoryLiquidator struct {
	resolver      *PrerequisiteResolver
	clock         ports.Clock
	reserveFloor  int64
	claimDelay    time.Duration
	exchangeDelay time.Duration
}

func NewInventoryLiquidator(resolver *PrerequisiteResolver, clock ports.Clock, settings Settings) *InventoryLiquidator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &InventoryLiquidator{
		resolver:      resolver,
		clock:         clock,
		reserveFloor:  settings.ReserveFloor,
		claimDelay:    settings.ClaimDelay,
		exchangeDelay: settings.ExchangeDelay,
	}
}

// ActivateCreditItems claims credit items worth up to the inventory credit
// total minus the reserve floor. The claimed set never overshoots that excess
// and matches it exactly whenever some subset of the credits does.
func (l *InventoryLiquidator) ActivateCreditItems(ctx context.Context, client InventoryClient) (activated, found int, value int64, err error) {
	logger := log.ForAccount(ctx, "liquidator", client.Account())

	items, err := client.FullInventory(ctx, false)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("scan inventory: %w", err)
	}

	var (
		credits []domain.InventoryItem
		total   int64
	)
	for _, item := range items {
		if !item.CreditEligible() {
			continue
		}
		credits = append(credits, item)
		total += item.Reward.CreditValue()
	}
	found = len(credits)

	excess := total - l.reserveFloor
	if excess <= 0 {
		logger.Debug().Int64("total", total).Int64("reserve", l.reserveFloor).Msg("credit total within reserve, nothing to claim")
		return 0, found, 0, nil
	}

	sort.SliceStable(credits, func(i, j int) bool {
		return credits[i].Reward.CreditValue() < credits[j].Reward.CreditValue()
	})

	for _, item := range selectCredits(credits, excess) {
		credit := item.Reward.CreditValue()
		if err := ctx.Err(); err != nil {
			return activated, found, value, err
		}

		if claimErr := l.claimWithGate(ctx, client, item.UserPrizeID); claimErr != nil {
			logger.Warn().Err(claimErr).Int64("prize_id", item.UserPrizeID).Str("name", item.Reward.Name).Msg("credit claim failed")
		} else {
			activated++
			value += credit
		}

		if sleepErr := l.clock.Sleep(ctx, l.claimDelay); sleepErr != nil {
			return activated, found, value, sleepErr
		}
	}

	metrics.RecordLiquidated("activate", activated)
	logger.Info().Int("activated", activated).Int("found", found).Int64("value", value).Msg("credit items activated")
	return activated, found, value, nil
}

// ExchangeCheapGifts converts pending collectibles valued at or below
// threshold. Items already exchanged or claimed are skipped, so a second run
// over the same inventory does nothing.
// maxPlannedExcess bounds the subset-sum table; larger excesses are planned
// greedily.
const maxPlannedExcess = 1 << 16

// selectCredits picks the credits to claim so their sum comes as close to
// excess as possible without passing it. credits must be sorted cheapest
// first; an exact cheapest-first run is kept as is, otherwise the subset is
// planned over reachable sums, cheaper items winning ties.
func selectCredits(credits []domain.InventoryItem, excess int64) []domain.InventoryItem {
	var (
		greedy    []domain.InventoryItem
		greedySum int64
	)
	for _, item := range credits {
		credit := item.Reward.CreditValue()
		if credit <= 0 || greedySum+credit > excess {
			continue
		}
		greedy = append(greedy, item)
		greedySum += credit
	}
	if greedySum == excess || excess > maxPlannedExcess {
		return greedy
	}

	// via[s] is 1 + the index of the item that first reached sum s.
	via := make([]int, excess+1)
	via[0] = -1
	for i, item := range credits {
		credit := item.Reward.CreditValue()
		if credit <= 0 || credit > excess {
			continue
		}
		for sum := excess; sum >= credit; sum-- {
			if via[sum] == 0 && via[sum-credit] != 0 {
				via[sum] = i + 1
			}
		}
	}

	best := excess
	for best > 0 && via[best] == 0 {
		best--
	}
	if best <= greedySum {
		return greedy
	}

	var picked []int
	for sum := best; sum > 0; {
		i := via[sum] - 1
		picked = append(picked, i)
		sum -= credits[i].Reward.CreditValue()
	}
	sort.Ints(picked)

	selected := make([]domain.InventoryItem, 0, len(picked))
	for _, i := range picked {
		selected = append(selected, credits[i])
	}
	return selected
}

func (l *InventoryLiquidator) ExchangeCheapGifts(ctx context.Context, client InventoryClient, threshold int64) (exchanged, found int, descriptions []string, err error) {
	logger := log.ForAccount(ctx, "liquidator", client.Account())

	items, err := client.FullInventory(ctx, false)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("scan inventory: %w", err)
	}

	for _, item := range items {
		if !item.GiftPending() {
			continue
		}
		found++
		if !item.ExchangeEligible(threshold) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return exchanged, found, descriptions, err
		}

		description, ok := l.exchangeOne(ctx, client, item)
		if !ok {
			continue
		}
		exchanged++
		descriptions = append(descriptions, description)

		if sleepErr := l.clock.Sleep(ctx, l.exchangeDelay); sleepErr != nil {
			return exchanged, found, descriptions, sleepErr
		}
	}

	if exchanged > 0 {
		logger.Info().Int("exchanged", exchanged).Int("found", found).Msg("cheap gifts exchanged")
	}
	return exchanged, found, descriptions, nil
}

func (l *InventoryLiquidator) exchangeOne(ctx context.Context, client InventoryClient, item domain.InventoryItem) (string, bool) {
	logger := log.ForAccount(ctx, "liquidator", client.Account())
	description := item.Reward.Describe()

	err := client.Exchange(ctx, item.UserPrizeID)
	if code, gated := gateCode(err); gated && l.resolver.ResolveClaimGate(ctx, client.Account(), client, code) {
		err = client.Exchange(ctx, item.UserPrizeID)
	}
	if err == nil {
		metrics.RecordLiquidated("exchange", 1)
		return description, true
	}

	if !exchangeFallbackEligible(err) {
		logger.Warn().Err(err).Int64("prize_id", item.UserPrizeID).Msg("exchange failed")
		return "", false
	}

	logger.Info().Err(err).Int64("prize_id", item.UserPrizeID).Msg("exchange failed, falling back to claim")
	if claimErr := l.claimWithGate(ctx, client, item.UserPrizeID); claimErr != nil {
		logger.Warn().Err(claimErr).Int64("prize_id", item.UserPrizeID).Msg("claim fallback failed")
		return "", false
	}

	metrics.RecordLiquidated("claim_fallback", 1)
	return description + " [via claim]", true
}

// claimWithGate claims once and, if a tunnel or portal gate blocks it,
// acknowledges the gate and retries once.
func (l *InventoryLiquidator) claimWithGate(ctx context.Context, client InventoryClient, userPrizeID int64) error {
	err := client.Claim(ctx, userPrizeID)
	if code, gated := gateCode(err); gated {
		if !l.resolver.ResolveClaimGate(ctx, client.Account(), client, code) {
			return err
		}
		err = client.Claim(ctx, userPrizeID)
	}
	return err
}

func gateCode(err error) (domain.RemoteCode, bool) {
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) {
		return "", false
	}
	switch remoteErr.Code {
	case domain.RemoteCodeTunnelAckRequired, domain.RemoteCodePortalAckRequired:
		return remoteErr.Code, true
	default:
		return "", false
	}
}

func exchangeFallbackEligible(err error) bool {
	if domain.KindOf(err) == domain.KindTransientNetwork {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "internal server error") || strings.Contains(lower, "422")
}
