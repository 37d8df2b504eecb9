package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/bnema/spin-accounts-cli/internal/application"
	"github.com/bnema/spin-accounts-cli/internal/domain"
)

const (
	exportFileMode = 0o600
	exportDirMode  = 0o700
)

type exportedRun struct {
	ID         string           `json:"id"`
	Workflow   domain.Workflow  `json:"workflow"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	HighValue  int              `json:"high_value"`
	Results    []exportedResult `json:"results"`
}

type exportedResult struct {
	Account      string `json:"account"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Reason       string `json:"reason,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Prize        string `json:"prize,omitempty"`
	PrizeValue   int64  `json:"prize_value,omitempty"`
	StarsBalance *int64 `json:"stars_balance,omitempty"`
	GiftsValue   int64  `json:"gifts_value,omitempty"`
	Activated    int    `json:"credits_activated,omitempty"`
	Exchanged    int    `json:"gifts_exchanged,omitempty"`
}

// MarshalRun encodes a batch run as indented JSON.
func MarshalRun(batch domain.BatchRun) ([]byte, error) {
	summary := batch.Summary()
	out := exportedRun{
		ID:         batch.ID,
		Workflow:   batch.Workflow,
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
		Total:      summary.Total,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		HighValue:  summary.HighValue,
		Results:    make([]exportedResult, 0, len(batch.Results)),
	}

	for _, result := range batch.Results {
		out.Results = append(out.Results, exportResult(result))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	return append(data, '\n'), nil
}

// Export writes the run to path, replacing any previous file atomically.
func Export(path string, batch domain.BatchRun) error {
	data, err := MarshalRun(batch)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, exportDirMode); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	if err := renameio.WriteFile(path, data, exportFileMode); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func exportResult(result domain.BatchResult) exportedResult {
	out := exportedResult{
		Account: result.AccountName,
		Success: result.Success,
		Message: result.Message,
		Reason:  string(result.Reason),
	}
	if !result.Success && result.ErrorKind != "" {
		out.ErrorKind = string(result.ErrorKind)
	}

	if result.Spin != nil && result.Spin.Prize != nil {
		out.Prize = result.Spin.Prize.Name
		out.PrizeValue = result.Spin.Prize.ExchangeValue
	}
	if result.Balance != nil {
		stars := result.Balance.StarsBalance
		out.StarsBalance = &stars
		out.GiftsValue = result.Balance.GiftsValue()
	}
	if result.Validation != nil && result.Validation.Status == application.ValidationValid {
		stars := result.Validation.StarsBalance
		out.StarsBalance = &stars
	}
	if result.Liquidation != nil {
		out.Activated = result.Liquidation.CreditsActivated
		out.Exchanged = result.Liquidation.GiftsExchanged
	}

	return out
}
