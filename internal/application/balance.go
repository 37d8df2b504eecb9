package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
)

func BalanceWorkflow(rt *Runtime, useCache bool) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunBalance(ctx, rt, name, useCache)
	}
}

// RunBalance reports balances and pending gifts for one account, optionally
// exchanging cheap gifts on the way.
func RunBalance(ctx context.Context, rt *Runtime, name string, useCache bool) domain.BatchResult {
	logger := log.ForAccount(ctx, "balance", name)

	client, _, err := rt.Client(ctx, name)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	stars, balance, err := client.Balance(ctx, useCache)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	result := domain.BatchResult{AccountName: name, Success: true}

	if rt.Settings.ExchangeOnBalanceCheck {
		exchanged, found, descriptions, err := rt.Liquidator.ExchangeCheapGifts(ctx, client, rt.Settings.ExchangeThreshold)
		if err != nil {
			logger.Warn().Err(err).Msg("gift exchange during balance check failed")
		}
		if exchanged > 0 {
			result.Liquidation = &domain.LiquidationReport{GiftsExchanged: exchanged, GiftsFound: found, Exchanged: descriptions}
			useCache = false
			if stars, balance, err = client.Balance(ctx, false); err != nil {
				return rt.failed(ctx, name, err)
			}
		}
	}

	items, err := client.FullInventory(ctx, useCache)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	report := &domain.BalanceReport{StarsBalance: stars, Balance: balance}
	for _, item := range items {
		if !item.GiftPending() {
			continue
		}
		report.Gifts = append(report.Gifts, domain.GiftDetail{
			Name:          item.Reward.Name,
			ExchangeValue: item.Reward.ExchangeValue,
			Status:        item.Status,
		})
	}
	result.Balance = report
	result.Message = balanceMessage(report)

	logger.Debug().Int64("stars", stars).Int("gifts", len(report.Gifts)).Msg("balance checked")
	return result
}

func balanceMessage(report *domain.BalanceReport) string {
	message := fmt.Sprintf("%s⭐, balance %s", domain.CompactStars(report.StarsBalance), domain.CompactStars(report.Balance))
	if len(report.Gifts) > 0 {
		message += fmt.Sprintf(", %d gift(s) worth %d⭐", len(report.Gifts), report.GiftsValue())
	}
	return message
}

// SortBalanceResults orders results for display: accounts holding gifts
// first, then by stars descending; failures last. Ties keep input order.
func SortBalanceResults(results []domain.BatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Balance, results[j].Balance
		if (a == nil) != (b == nil) {
			return a != nil
		}
		if a == nil {
			return false
		}
		if hasGifts(a) != hasGifts(b) {
			return hasGifts(a)
		}
		return a.StarsBalance > b.StarsBalance
	})
}

// SortByStars orders results by stars balance descending.
func SortByStars(results []domain.BatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return starsOf(results[i]) > starsOf(results[j])
	})
}

func hasGifts(report *domain.BalanceReport) bool {
	return len(report.Gifts) > 0
}

func starsOf(result domain.BatchResult) int64 {
	switch {
	case result.Balance != nil:
		return result.Balance.StarsBalance
	case result.Validation != nil:
		return result.Validation.StarsBalance
	default:
		return -1
	}
}
