package domain

import (
	"fmt"
	"time"
)

type Workflow string

const (
	WorkflowSpin     Workflow = "spin"
	WorkflowPaidSpin Workflow = "paid_spin"
	WorkflowBalance  Workflow = "balance"
	WorkflowValidate Workflow = "validate"
	WorkflowActivate Workflow = "activate"
	WorkflowExchange Workflow = "exchange"
)

type BatchResult struct {
	AccountName string
	Success     bool
	Message     string
	Reason      FailureReason
	ErrorKind   ErrorKind

	Spin        *SpinReport        `json:",omitempty"`
	Liquidation *LiquidationReport `json:",omitempty"`
	Balance     *BalanceReport     `json:",omitempty"`
	Validation  *ValidationReport  `json:",omitempty"`
}

type SpinReport struct {
	Type      SpinType
	Attempts  int
	Prize     *RewardItem `json:",omitempty"`
	HighValue bool
}

type LiquidationReport struct {
	CreditsActivated int
	CreditsFound     int
	CreditValue      int64
	GiftsExchanged   int
	GiftsFound       int
	Exchanged        []string
}

type GiftDetail struct {
	Name          string
	ExchangeValue int64
	Status        InventoryStatus
}

type BalanceReport struct {
	StarsBalance int64
	Balance      int64
	Gifts        []GiftDetail
}

func (b BalanceReport) GiftsValue() int64 {
	var total int64
	for _, gift := range b.Gifts {
		total += gift.ExchangeValue
	}
	return total
}

type ValidationReport struct {
	Status       string
	UserID       string
	StarsBalance int64
}

func FailedResult(name string, err error) BatchResult {
	return BatchResult{
		AccountName: name,
		Message:     fmt.Sprintf("error: %v", err),
		Reason:      FailureOther,
		ErrorKind:   KindOf(err),
	}
}

type BatchRun struct {
	ID         string
	Workflow   Workflow
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []BatchResult
}

type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	HighValue int
}

func (r BatchRun) Summary() BatchSummary {
	summary := BatchSummary{Total: len(r.Results)}
	for _, result := range r.Results {
		if result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if result.Spin != nil && result.Spin.HighValue {
			summary.HighValue++
		}
	}
	return summary
}

func (r BatchRun) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CompactStars renders a star amount as 999, 1.2k or 3.4M.
func CompactStars(v int64) string {
	return compactNumber(v)
}

func compactNumber(v int64) string {
	if v < 1_000 {
		return fmt.Sprintf("%d", v)
	}

	if v < 1_000_000 {
		return fmt.Sprintf("%.1fk", float64(v)/1_000)
	}

	return fmt.Sprintf("%.1fM", float64(v)/1_000_000)
}
