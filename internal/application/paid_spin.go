package application

import (
	"context"
	"fmt"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
)

func PaidSpinWorkflow(rt *Runtime, spinType domain.SpinType) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunPaidSpin(ctx, rt, name, spinType)
	}
}

// RunPaidSpin spends stars on one spin. There is no prerequisite loop; a
// rejection ends the workflow.
func RunPaidSpin(ctx context.Context, rt *Runtime, name string, spinType domain.SpinType) domain.BatchResult {
	logger := log.ForAccount(ctx, "paid_spin", name)
	if spinType == "" || spinType == domain.SpinTypeFree {
		spinType = rt.Settings.PaidSpinType
	}
	if spinType == "" {
		spinType = domain.SpinTypePaid
	}

	client, _, err := rt.Client(ctx, name)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	stars, _, err := client.Balance(ctx, false)
	if err != nil {
		return rt.failed(ctx, name, err)
	}
	if stars < rt.Settings.PaidSpinMinStars {
		logger.Info().Int64("stars", stars).Int64("required", rt.Settings.PaidSpinMinStars).Msg("not enough stars for paid spin")
		result := domain.FailedResult(name, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientStars, stars, rt.Settings.PaidSpinMinStars))
		result.Spin = &domain.SpinReport{Type: spinType}
		return result
	}

	outcome, err := client.Spin(ctx, spinType)
	if err != nil {
		metrics.RecordSpinAttempt(string(spinType), "error")
		return rt.failed(ctx, name, err)
	}
	metrics.RecordSpinAttempt(string(spinType), outcomeLabel(outcome))

	if !outcome.Succeeded {
		logger.Warn().Str("reason", string(outcome.Reason)).Msg("paid spin rejected")
		return spinFailedResult(name, spinType, 1, outcome)
	}

	return rt.finishSpin(ctx, client, name, spinType, 1, outcome.Prize)
}
