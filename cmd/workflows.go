package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/spin-accounts-cli/internal/adapters/render/report"
	"github.com/bnema/spin-accounts-cli/internal/application"
	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

type runFlags struct {
	accounts   []string
	exclude    []string
	limit      int
	asJSON     bool
	noProgress bool
	exportPath string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.accounts, "account", nil, "Only run these accounts (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Skip these accounts")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Run at most this many accounts (0 = all)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Do not draw the progress bar")
	cmd.Flags().StringVar(&f.exportPath, "export", "", "Also write the run as JSON to this file")
}

func (f runFlags) selection() domain.AccountSelection {
	return domain.AccountSelection{Include: f.accounts, Exclude: f.exclude, Limit: f.limit}
}

// workflowSpec describes one batch command: what runs per account and what
// happens to the results before they are printed.
type workflowSpec struct {
	kind      domain.Workflow
	title     string
	batchSize func(*application.Runtime) int
	build     func(*application.Runtime) application.AccountWorkflow
	finish    func(context.Context, *application.Runtime, *domain.BatchRun) error
}

func newSpinCmd(app *app) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "spin",
		Short: "Claim the free spin on every selected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowSpin,
				title: "Spinning",
				build: application.SpinWorkflow,
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func newPaidSpinCmd(app *app) *cobra.Command {
	var flags runFlags
	var spinType string

	cmd := &cobra.Command{
		Use:   "paid-spin",
		Short: "Spend Stars on one paid spin per selected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed := domain.SpinType("")
			if spinType != "" {
				var err error
				if parsed, err = domain.ParseSpinType(spinType); err != nil {
					return err
				}
			}

			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowPaidSpin,
				title: "Paid spins",
				build: func(rt *application.Runtime) application.AccountWorkflow {
					return application.PaidSpinWorkflow(rt, parsed)
				},
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&spinType, "type", "", "Spin type (PAID|X200|PREMIUM; default from config)")

	return cmd
}

const (
	balanceSortGifts = "gifts"
	balanceSortStars = "stars"
)

func newBalanceCmd(app *app) *cobra.Command {
	var flags runFlags
	var fresh bool
	var sortBy string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show Stars, balance and pending gifts per account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sortResults := application.SortBalanceResults
			switch sortBy {
			case balanceSortGifts:
			case balanceSortStars:
				sortResults = application.SortByStars
			default:
				return fmt.Errorf("unsupported sort %q (want %s or %s)", sortBy, balanceSortGifts, balanceSortStars)
			}

			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowBalance,
				title: "Checking balances",
				batchSize: func(rt *application.Runtime) int {
					return rt.Settings.BalanceBatchSize
				},
				build: func(rt *application.Runtime) application.AccountWorkflow {
					return application.BalanceWorkflow(rt, !fresh)
				},
				finish: func(ctx context.Context, rt *application.Runtime, run *domain.BatchRun) error {
					sortResults(run.Results)
					return application.RecordAccountStates(ctx, rt, run.Results)
				},
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Bypass the response cache")
	cmd.Flags().StringVar(&sortBy, "sort", balanceSortGifts, "Order results: gifts (accounts holding gifts first) or stars")

	return cmd
}

func newValidateCmd(app *app) *cobra.Command {
	var flags runFlags
	var quick, fresh bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every selected session is authorized and reaches the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if quick {
				return runQuickValidate(cmd, app, !fresh, flags.asJSON)
			}
			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowValidate,
				title: "Validating",
				build: application.ValidateWorkflow,
				finish: func(ctx context.Context, rt *application.Runtime, run *domain.BatchRun) error {
					return application.RecordAccountStates(ctx, rt, run.Results)
				},
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&quick, "quick", false, "Only check session authorization for every account and print the counts")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "With --quick, ignore cached validity")
	cmd.MarkFlagsMutuallyExclusive("quick", "account")
	cmd.MarkFlagsMutuallyExclusive("quick", "exclude")
	cmd.MarkFlagsMutuallyExclusive("quick", "limit")
	cmd.MarkFlagsMutuallyExclusive("quick", "export")

	return cmd
}

type quickValidation struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// runQuickValidate asks the session pool for a health count. Unlike the full
// workflow it never touches the remote application or the registry.
func runQuickValidate(cmd *cobra.Command, app *app, useCache, asJSON bool) error {
	ctx := cmd.Context()

	eng, err := app.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close(context.WithoutCancel(ctx)) }()

	valid, invalid := eng.rt.Pool.ValidateAll(ctx, useCache)
	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(quickValidation{Valid: valid, Invalid: invalid})
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "valid: %d  invalid: %d\n", valid, invalid)
	return err
}

func newActivateCmd(app *app) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate Star credits waiting in each inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowActivate,
				title: "Activating",
				build: application.ActivateWorkflow,
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func newExchangeCmd(app *app) *cobra.Command {
	var flags runFlags
	var threshold int64

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange gifts worth at most the threshold for Stars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, app, flags, workflowSpec{
				kind:  domain.WorkflowExchange,
				title: "Exchanging",
				build: func(rt *application.Runtime) application.AccountWorkflow {
					return application.ExchangeWorkflow(rt, threshold)
				},
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "Highest gift value to exchange (0 = reward.exchange_threshold)")

	return cmd
}

func runWorkflow(cmd *cobra.Command, app *app, flags runFlags, spec workflowSpec) error {
	ctx := cmd.Context()
	if err := flags.selection().Validate(); err != nil {
		return err
	}

	eng, err := app.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close(context.WithoutCancel(ctx)) }()

	names, err := app.accounts.Eligible(ctx, eng.rt.Pool.Names(), flags.selection())
	if err != nil {
		return err
	}

	batchSize := 0
	if spec.batchSize != nil {
		batchSize = spec.batchSize(eng.rt)
	}
	workflow := spec.build(eng.rt)
	execute := func(onProgress ports.ProgressFunc) domain.BatchRun {
		return eng.batches.Execute(ctx, spec.kind, names, batchSize, workflow, onProgress)
	}

	var run domain.BatchRun
	if flags.asJSON || flags.noProgress || len(names) == 0 {
		run = execute(nil)
	} else {
		run, err = runBatchProgress(ctx, cmd.ErrOrStderr(), spec.title, len(names), execute)
		if err != nil {
			return err
		}
	}

	if spec.finish != nil {
		if err := spec.finish(ctx, eng.rt, &run); err != nil {
			return fmt.Errorf("record %s results: %w", spec.kind, err)
		}
	}

	if flags.exportPath != "" {
		if err := report.Export(flags.exportPath, run); err != nil {
			return err
		}
	}

	return writeRunOutput(cmd, app, run, flags.asJSON)
}

func writeRunOutput(cmd *cobra.Command, app *app, run domain.BatchRun, asJSON bool) error {
	if asJSON {
		data, err := report.MarshalRun(run)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	rendered, err := app.renderRun(run, report.RenderOptions{
		Now:            app.now(),
		HighlightAbove: app.cfg.PaidSpin.AutoThreshold,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
