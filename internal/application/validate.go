package application

import (
	"context"
	"errors"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
)

// Validation statuses.
const (
	ValidationValid          = "valid"
	ValidationSessionError   = "session_error"
	ValidationSessionInvalid = "session_invalid"
	ValidationWebAppError    = "webapp_error"
	ValidationAPIError       = "api_error"
)

func ValidateWorkflow(rt *Runtime) AccountWorkflow {
	return func(ctx context.Context, name string) domain.BatchResult {
		return RunValidate(ctx, rt, name)
	}
}

// RunValidate checks each layer an account needs: session, app view and the
// remote profile. The first failing layer names the status.
func RunValidate(ctx context.Context, rt *Runtime, name string) domain.BatchResult {
	logger := log.ForAccount(ctx, "validate", name)

	session, err := rt.Pool.GetOrCreate(ctx, name)
	if err != nil {
		status := ValidationSessionError
		if domain.KindOf(err) == domain.KindCredentialInvalid {
			status = ValidationSessionInvalid
			rt.Exclude(name)
		}
		return validationFailed(name, status, err)
	}

	authorized, err := session.IsAuthorized(ctx)
	if err != nil {
		return validationFailed(name, ValidationSessionError, err)
	}
	if !authorized {
		rt.Pool.Release(ctx, name)
		rt.Exclude(name)
		return validationFailed(name, ValidationSessionInvalid, errors.New("session is not authorized"))
	}

	client, _, err := rt.Client(ctx, name)
	if err != nil {
		return validationFailed(name, ValidationWebAppError, err)
	}

	profile, err := client.Me(ctx, false)
	if err != nil {
		return validationFailed(name, ValidationAPIError, err)
	}

	rt.Readmit(name)
	logger.Debug().Str("user_id", profile.UserID).Msg("account valid")
	return domain.BatchResult{
		AccountName: name,
		Success:     true,
		Message:     ValidationValid,
		Validation: &domain.ValidationReport{
			Status:       ValidationValid,
			UserID:       profile.UserID,
			StarsBalance: profile.StarsBalance,
		},
	}
}

func validationFailed(name, status string, err error) domain.BatchResult {
	result := domain.FailedResult(name, err)
	result.Validation = &domain.ValidationReport{Status: status}
	return result
}

// RecordAccountStates writes validation statuses and observed balances back
// to the account registry in one update.
func RecordAccountStates(ctx context.Context, rt *Runtime, results []domain.BatchResult) error {
	if rt.Accounts == nil {
		return nil
	}

	existing, err := rt.Accounts.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]domain.Account, len(existing))
	for _, account := range existing {
		byName[account.Name] = account
	}

	now := rt.Clock.Now()
	var updated []domain.Account
	for _, result := range results {
		account, ok := byName[result.AccountName]
		if !ok {
			account = domain.Account{
				Name:          result.AccountName,
				CredentialRef: domain.CredentialFileName(result.AccountName),
				Status:        domain.AuthStatusUnauthenticated,
			}
		}

		switch {
		case result.Validation != nil:
			if status, known := statusFromValidation(result.Validation.Status); known {
				account.Status = status
			}
			account.CheckedAt = now
			if result.Success {
				account.StarsBalance = result.Validation.StarsBalance
			}
		case result.Balance != nil:
			account.StarsBalance = result.Balance.StarsBalance
			account.Status = domain.AuthStatusAuthenticated
			account.CheckedAt = now
		default:
			continue
		}
		updated = append(updated, account)
	}

	if len(updated) == 0 {
		return nil
	}
	return rt.Accounts.SaveAll(ctx, updated)
}

// statusFromValidation maps a validation status onto the registry. A
// session_error says nothing about the credential, so the stored status is
// kept.
func statusFromValidation(status string) (domain.AuthStatus, bool) {
	switch status {
	case ValidationValid:
		return domain.AuthStatusAuthenticated, true
	case ValidationSessionInvalid:
		return domain.AuthStatusInvalid, true
	case ValidationSessionError:
		return "", false
	default:
		return domain.AuthStatusUnauthenticated, true
	}
}
