package jobs

import (
	"context"
	"fmt"

	"github.com/bnema/spin-accounts-cli/internal/application"
	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

type batchRunner interface {
	RunBatch(ctx context.Context, names []string, workflow application.AccountWorkflow, onProgress ports.ProgressFunc) []domain.BatchResult
	Execute(ctx context.Context, kind domain.Workflow, names []string, batchSize int, workflow application.AccountWorkflow, onProgress ports.ProgressFunc) domain.BatchRun
}

type accountSource interface {
	Eligible(ctx context.Context, loaded []string, selection domain.AccountSelection) ([]string, error)
}

type PassConfig struct {
	BatchSize     int
	PaidSpinType  domain.SpinType
	AutoThreshold int64
}

// Passes are the scheduled daemon runs over every enabled loaded account.
type Passes struct {
	rt       *application.Runtime
	batches  batchRunner
	accounts accountSource
	loaded   func() []string
	cfg      PassConfig
}

func NewPasses(rt *application.Runtime, batches *application.BatchCoordinator, accounts *application.AccountService, cfg PassConfig) *Passes {
	return &Passes{
		rt:       rt,
		batches:  batches,
		accounts: accounts,
		loaded:   rt.Pool.Names,
		cfg:      cfg,
	}
}

// FreeSpins runs the free spin workflow for every eligible account.
func (p *Passes) FreeSpins(ctx context.Context) (domain.BatchRun, error) {
	names, err := p.eligible(ctx)
	if err != nil {
		return domain.BatchRun{}, err
	}
	if len(names) == 0 {
		log.FromContext(ctx, "jobs").Info().Msg("no accounts eligible for free spins")
		return domain.BatchRun{Workflow: domain.WorkflowSpin}, nil
	}

	return p.batches.Execute(ctx, domain.WorkflowSpin, names, p.cfg.BatchSize, application.SpinWorkflow(p.rt), nil), nil
}

// PaidSpins refreshes balances, records them in the registry and spends one
// paid spin on each account holding at least the auto threshold.
func (p *Passes) PaidSpins(ctx context.Context) (domain.BatchRun, error) {
	logger := log.FromContext(ctx, "jobs")

	names, err := p.eligible(ctx)
	if err != nil {
		return domain.BatchRun{}, err
	}
	if len(names) == 0 {
		logger.Info().Msg("no accounts eligible for paid spins")
		return domain.BatchRun{Workflow: domain.WorkflowPaidSpin}, nil
	}

	balances := p.batches.RunBatch(ctx, names, application.BalanceWorkflow(p.rt, true), nil)
	if err := application.RecordAccountStates(ctx, p.rt, balances); err != nil {
		logger.Warn().Err(err).Msg("record balances failed")
	}

	funded := p.funded(balances)
	if len(funded) == 0 {
		logger.Info().Int64("threshold", p.cfg.AutoThreshold).Msg("no account above the paid spin threshold")
		return domain.BatchRun{Workflow: domain.WorkflowPaidSpin}, nil
	}

	return p.batches.Execute(ctx, domain.WorkflowPaidSpin, funded, p.cfg.BatchSize, application.PaidSpinWorkflow(p.rt, p.cfg.PaidSpinType), nil), nil
}

// eligible drops disabled accounts and those whose credentials were found
// invalid earlier in this process.
func (p *Passes) eligible(ctx context.Context) ([]string, error) {
	names, err := p.accounts.Eligible(ctx, p.loaded(), domain.AccountSelection{})
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	return p.rt.Admitted(names), nil
}

func (p *Passes) funded(balances []domain.BatchResult) []string {
	var names []string
	for _, result := range balances {
		if !result.Success || result.Balance == nil {
			continue
		}
		if result.Balance.StarsBalance >= p.cfg.AutoThreshold {
			names = append(names, result.AccountName)
		}
	}
	return names
}

// FreeSpinJob and PaidSpinJob adapt the passes to scheduler jobs.
func (p *Passes) FreeSpinJob(spec string) Job {
	return Job{Name: "free_spins", Spec: spec, Run: func(ctx context.Context) error {
		_, err := p.FreeSpins(ctx)
		return err
	}}
}

func (p *Passes) PaidSpinJob(spec string) Job {
	return Job{Name: "paid_spins", Spec: spec, Run: func(ctx context.Context) error {
		_, err := p.PaidSpins(ctx)
		return err
	}}
}
