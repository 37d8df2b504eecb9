package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
)

// AccountWorkflow runs one workflow for one account. It always returns a
// result; errors are folded into it.
type AccountWorkflow func(ctx context.Context, name string) domain.BatchResult

// SpinWorkflow binds RunSpin to rt.
func SpinWorkflow(rt *Runtime) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunSpin(ctx, rt, name)
	}
}

// RunSpin performs the free spin for one account, resolving prerequisites
// between attempts, then liquidates the inventory.
func RunSpin(ctx context.Context, rt *Runtime, name string) domain.BatchResult {
	logger := log.ForAccount(ctx, "spin", name)

	client, session, err := rt.Client(ctx, name)
	if err != nil {
		return rt.failed(ctx, name, err)
	}

	profile, err := client.Me(ctx, false)
	if err != nil {
		return rt.failed(ctx, name, err)
	}
	if profile.OnCooldown() {
		logger.Info().Msg("free spin on cooldown")
		return domain.BatchResult{
			AccountName: name,
			Message:     cooldownMessage(profile.NextFreeSpin),
			Reason:      domain.FailureCooldown,
			ErrorKind:   domain.KindRemoteBusinessRule,
			Spin:        &domain.SpinReport{Type: domain.SpinTypeFree},
		}
	}

	maxAttempts := rt.Settings.MaxSpinAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	var (
		outcome  domain.SpinOutcome
		attempts int
	)
	for attempts < maxAttempts {
		attempts++
		outcome, err = client.Spin(ctx, domain.SpinTypeFree)
		if err != nil {
			metrics.RecordSpinAttempt(string(domain.SpinTypeFree), "error")
			return rt.failed(ctx, name, err)
		}
		metrics.RecordSpinAttempt(string(domain.SpinTypeFree), outcomeLabel(outcome))
		logger.Debug().Int("attempt", attempts).Bool("succeeded", outcome.Succeeded).Str("reason", string(outcome.Reason)).Msg("spin attempt")

		if outcome.Succeeded || !outcome.Reason.Correctable() || attempts == maxAttempts {
			break
		}
		if !rt.Resolver.Resolve(ctx, name, session, client, outcome.Reason, outcome.Detail) {
			break
		}
		if err := rt.Clock.Sleep(ctx, rt.settleDelay(outcome.Reason)); err != nil {
			return rt.failed(ctx, name, err)
		}
	}

	if !outcome.Succeeded {
		logger.Warn().Int("attempts", attempts).Str("reason", string(outcome.Reason)).Msg("spin failed")
		return spinFailedResult(name, domain.SpinTypeFree, attempts, outcome)
	}

	return rt.finishSpin(ctx, client, name, domain.SpinTypeFree, attempts, outcome.Prize)
}

func spinFailedResult(name string, spinType domain.SpinType, attempts int, outcome domain.SpinOutcome) domain.BatchResult {
	kind := domain.KindRemoteBusinessRule
	if outcome.Reason.Correctable() {
		kind = domain.KindRemoteCorrectable
	}

	message := outcome.Detail.Message
	if message == "" {
		message = string(outcome.Reason)
	}

	return domain.BatchResult{
		AccountName: name,
		Message:     fmt.Sprintf("spin failed after %d attempt(s): %s", attempts, message),
		Reason:      outcome.Reason,
		ErrorKind:   kind,
		Spin:        &domain.SpinReport{Type: spinType, Attempts: attempts},
	}
}

// finishSpin liquidates the inventory and announces gift prizes. Liquidation
// failures are logged; the spin stays successful.
func (rt *Runtime) finishSpin(ctx context.Context, client *GameClient, name string, spinType domain.SpinType, attempts int, prize *domain.RewardItem) domain.BatchResult {
	logger := log.ForAccount(ctx, "spin", name)

	report := &domain.SpinReport{Type: spinType, Attempts: attempts, Prize: prize}
	result := domain.BatchResult{
		AccountName: name,
		Success:     true,
		Message:     "spin succeeded, won " + describePrize(prize),
		Spin:        report,
	}

	if prize != nil && prize.Class() == domain.RewardClassCollectibleGift {
		report.HighValue = prize.IsHighValue(rt.Settings.HighValueThreshold)
		rt.notify(ctx, giftNotification(spinType, name, *prize, report.HighValue))
	}

	liquidation := &domain.LiquidationReport{}
	activated, found, value, err := rt.Liquidator.ActivateCreditItems(ctx, client)
	if err != nil {
		logger.Error().Err(err).Msg("credit activation failed")
	}
	liquidation.CreditsActivated, liquidation.CreditsFound, liquidation.CreditValue = activated, found, value

	if rt.Settings.ExchangeAfterSpin {
		exchanged, gifts, descriptions, err := rt.Liquidator.ExchangeCheapGifts(ctx, client, rt.Settings.ExchangeThreshold)
		if err != nil {
			logger.Error().Err(err).Msg("gift exchange failed")
		}
		liquidation.GiftsExchanged, liquidation.GiftsFound, liquidation.Exchanged = exchanged, gifts, descriptions
	}
	result.Liquidation = liquidation

	logger.Info().Str("prize", describePrize(prize)).Int("attempts", attempts).Msg("spin succeeded")
	return result
}

func (rt *Runtime) settleDelay(reason domain.FailureReason) time.Duration {
	if reason == domain.FailureNeedsSubscription {
		return rt.Settings.SettleAfterSubscription
	}
	return rt.Settings.SettleAfterLinkAck
}

// failed converts err to a failed result and drops the session when the
// credential is no longer usable.
func (rt *Runtime) failed(ctx context.Context, name string, err error) domain.BatchResult {
	logger := log.ForAccount(ctx, "runtime", name)
	kind := domain.KindOf(err)
	if kind == domain.KindCredentialInvalid {
		rt.Pool.Release(context.WithoutCancel(ctx), name)
		rt.Exclude(name)
	}
	logger.Warn().Err(err).Str("kind", string(kind)).Msg("workflow failed")
	return domain.FailedResult(name, err)
}

func outcomeLabel(outcome domain.SpinOutcome) string {
	if outcome.Succeeded {
		return "success"
	}
	return string(outcome.Reason)
}

func describePrize(prize *domain.RewardItem) string {
	if prize == nil {
		return "nothing"
	}
	return prize.Describe()
}

func cooldownMessage(next *time.Time) string {
	if next == nil || next.IsZero() {
		return "free spin on cooldown"
	}
	return "free spin on cooldown until " + next.UTC().Format(time.RFC3339)
}

func giftNotification(spinType domain.SpinType, account string, prize domain.RewardItem, highValue bool) string {
	marker := "🎁"
	if highValue {
		marker = "💎"
	}
	label := "FREE SPIN"
	if spinType != domain.SpinTypeFree {
		label = string(spinType) + " SPIN"
	}
	return fmt.Sprintf("%s %s | %s | %s | %d⭐", marker, label, account, prize.Name, prize.ExchangeValue)
}
