package ports

import (
	"context"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

type AccountRepository interface {
	GetByName(ctx context.Context, name string) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
	SaveAll(ctx context.Context, accounts []domain.Account) error
}
