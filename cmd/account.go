package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/spin-accounts-cli/internal/adapters/render/report"
	"github.com/bnema/spin-accounts-cli/internal/domain"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountImportCmd(app),
		newAccountRemoveCmd(app),
		newAccountDisableCmd(app, true),
		newAccountDisableCmd(app, false),
	)

	return cmd
}

type accountJSON struct {
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	StarsBalance int64   `json:"stars_balance"`
	CheckedAt    *string `json:"checked_at,omitempty"`
	Disabled     bool    `json:"disabled"`
}

func newAccountListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their last known status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.accounts.List(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeAccountsJSON(cmd.OutOrStdout(), accounts)
			}

			rendered, err := report.RenderAccounts(accounts, report.RenderOptions{Now: app.now()})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeAccountsJSON(w io.Writer, accounts []domain.Account) error {
	out := make([]accountJSON, 0, len(accounts))
	for _, account := range accounts {
		entry := accountJSON{
			Name:         account.Name,
			Status:       string(account.Status),
			StarsBalance: account.StarsBalance,
			Disabled:     account.Disabled,
		}
		if !account.CheckedAt.IsZero() {
			checked := account.CheckedAt.UTC().Format(time.RFC3339)
			entry.CheckedAt = &checked
		}
		out = append(out, entry)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func newAccountImportCmd(app *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Store a session credential for an account",
		Long:  "Reads the exported session credential from --file (or stdin with --file -) and registers the account.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := readCredential(cmd, file)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(args[0])
			if err := app.accounts.Import(cmd.Context(), name, blob); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", name)
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Credential file path, or - for stdin")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readCredential(cmd *cobra.Command, file string) ([]byte, error) {
	var (
		blob []byte
		err  error
	)
	if file == "-" {
		blob, err = io.ReadAll(cmd.InOrStdin())
	} else {
		blob, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("read credential: %w", domain.ErrCredentialNotFound)
	}
	return blob, nil
}

func newAccountRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an account's credential and disable it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.accounts.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return err
		},
	}
}

func newAccountDisableCmd(app *app, disabled bool) *cobra.Command {
	use, short, verb := "disable <name>", "Exclude an account from batches", "disabled"
	if !disabled {
		use, short, verb = "enable <name>", "Include a disabled account in batches again", "enabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.accounts.SetDisabled(cmd.Context(), args[0], disabled); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
			return err
		},
	}
}
