package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	sqliteledger "github.com/bnema/spin-accounts-cli/internal/adapters/ledger/sqlite"
	"github.com/bnema/spin-accounts-cli/internal/adapters/render/report"
)

func newHistoryCmd(app *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}

			ledger, err := sqliteledger.Open(app.cfg.Paths.Ledger, ledgerBusyTimeout)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			runs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				out := make([]json.RawMessage, 0, len(runs))
				for _, run := range runs {
					data, err := report.MarshalRun(run)
					if err != nil {
						return err
					}
					out = append(out, data)
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(out)
			}

			rendered, err := report.RenderHistory(runs, report.RenderOptions{Now: app.now()})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
