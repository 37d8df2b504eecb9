package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

// AccountService keeps the credential directory and the account registry in
// step. Every write to one side is rolled back when the other side fails.
type AccountService struct {
	repo        ports.AccountRepository
	credentials ports.CredentialStore
	clock       ports.Clock
}

func NewAccountService(repo ports.AccountRepository, credentials ports.CredentialStore, clock ports.Clock) *AccountService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &AccountService{repo: repo, credentials: credentials, clock: clock}
}

// Import stores a credential blob under name and registers the account. A
// re-import replaces the blob and resets the status.
func (s *AccountService) Import(ctx context.Context, name string, blob []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("account name is required")
	}
	if len(blob) == 0 {
		return fmt.Errorf("import %s: %w", name, domain.ErrCredentialNotFound)
	}

	account, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("get account by name: %w", err)
		}
		account = domain.Account{Name: name}
	}

	previous, err := s.credentials.Get(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		return fmt.Errorf("read previous credential: %w", err)
	}

	if err := s.credentials.Put(ctx, name, blob); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	account.CredentialRef = domain.CredentialFileName(name)
	account.Status = domain.AuthStatusUnauthenticated
	account.CheckedAt = s.clock.Now()

	if err := s.repo.Save(ctx, account); err != nil {
		var rollbackErr error
		if len(previous) > 0 {
			rollbackErr = s.credentials.Put(ctx, name, previous)
		} else {
			rollbackErr = s.credentials.Delete(ctx, name)
		}
		if rollbackErr != nil {
			return fmt.Errorf("save account and rollback stored credential: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save account: %w", err)
	}

	return nil
}

// Remove deletes the credential blob and marks the account disabled. The
// registry entry is kept so run history still resolves the name.
func (s *AccountService) Remove(ctx context.Context, name string) error {
	account, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("get account by name: %w", err)
	}
	original := account

	blob, err := s.credentials.Get(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		return fmt.Errorf("read credential: %w", err)
	}

	account.CredentialRef = ""
	account.Status = domain.AuthStatusUnauthenticated
	account.Disabled = true
	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if len(blob) == 0 {
		return nil
	}
	if err := s.credentials.Delete(ctx, name); err != nil {
		if restoreErr := s.repo.Save(ctx, original); restoreErr != nil {
			return fmt.Errorf("delete credential and restore account: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete credential: %w", err)
	}

	return nil
}

// SetDisabled excludes an account from batches without touching its
// credential.
func (s *AccountService) SetDisabled(ctx context.Context, name string, disabled bool) error {
	account, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("get account by name: %w", err)
		}
		if _, credErr := s.credentials.Get(ctx, name); credErr != nil {
			return fmt.Errorf("get account by name: %w", err)
		}
		account = domain.Account{
			Name:          name,
			CredentialRef: domain.CredentialFileName(name),
			Status:        domain.AuthStatusUnauthenticated,
		}
	}

	account.Disabled = disabled
	if err := s.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account disabled flag: %w", err)
	}

	return nil
}

// List returns one entry per credential, enriched from the registry, plus
// registry-only accounts. Sorted by name.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	names, err := s.credentials.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	registered, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	byName := make(map[string]domain.Account, len(registered)+len(names))
	for _, account := range registered {
		byName[account.Name] = account
	}
	for _, name := range names {
		if _, ok := byName[name]; ok {
			continue
		}
		byName[name] = domain.Account{
			Name:          name,
			CredentialRef: domain.CredentialFileName(name),
			Status:        domain.AuthStatusUnauthenticated,
		}
	}

	accounts := make([]domain.Account, 0, len(byName))
	for _, account := range byName {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// Eligible applies selection to the loaded names, dropping disabled accounts.
func (s *AccountService) Eligible(ctx context.Context, loaded []string, selection domain.AccountSelection) ([]string, error) {
	if err := selection.Validate(); err != nil {
		return nil, err
	}

	registered, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	disabled := make(map[string]struct{}, len(registered))
	for _, account := range registered {
		if account.Disabled {
			disabled[account.Name] = struct{}{}
		}
	}

	enabled := make([]string, 0, len(loaded))
	for _, name := range loaded {
		if _, ok := disabled[name]; !ok {
			enabled = append(enabled, name)
		}
	}

	return selection.Apply(enabled), nil
}
