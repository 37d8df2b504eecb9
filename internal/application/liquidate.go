package application

import (
	"context"
	"fmt"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

func ActivateWorkflow(rt *Runtime) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunActivate(ctx, rt, name)
	}
}

func ExchangeWorkflow(rt *Runtime, threshold int64) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunExchange(ctx, rt, name, threshold)
	}
}

// RunActivate claims excess credit items for one account.
func RunActivate(ctx context.Context, rt *Runtime, name string) domain.BatchResult {
	client, _, err := rt.Client(ctx, name)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	activated, found, value, err := rt.Liquidator.ActivateCreditItems(ctx, client)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	return domain.BatchResult{
		AccountName: name,
		Success:     true,
		Message:     fmt.Sprintf("activated %d of %d credit item(s), %d⭐", activated, found, value),
		Liquidation: &domain.LiquidationReport{
			CreditsActivated: activated,
			CreditsFound:     found,
			CreditValue:      value,
		},
	}
}

// RunExchange converts cheap gifts for one account. A non-positive threshold
// uses the configured one.
func RunExchange(ctx context.Context, rt *Runtime, name string, threshold int64) domain.BatchResult {
	if threshold <= 0 {
		threshold = rt.Settings.ExchangeThreshold
	}

	client, _, err := rt.Client(ctx, name)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	exchanged, found, descriptions, err := rt.Liquidator.ExchangeCheapGifts(ctx, client, threshold)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	return domain.BatchResult{
		AccountName: name,
		Success:     true,
		Message:     fmt.Sprintf("exchanged %d of %d gift(s)", exchanged, found),
		Liquidation: &domain.LiquidationReport{
			GiftsExchanged: exchanged,
			GiftsFound:     found,
			Exchanged:      descriptions,
		},
	}
}
