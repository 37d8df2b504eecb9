package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sa",
		Short:         "Spin Accounts CLI (sa): run spin and reward workflows across many accounts",
		Long:          "sa (Spin Accounts CLI) keeps one session per account, claims free and paid spins, clears prerequisites the remote asks for, and turns rewards into Stars, either on demand or from a scheduled daemon.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		rootCmd.AddCommand(newVersionCmd(), newConfigCmd())
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newAccountCmd(app),
		newHistoryCmd(app),
		newSpinCmd(app),
		newPaidSpinCmd(app),
		newBalanceCmd(app),
		newValidateCmd(app),
		newActivateCmd(app),
		newExchangeCmd(app),
		newDaemonCmd(app),
	)

	return rootCmd
}
