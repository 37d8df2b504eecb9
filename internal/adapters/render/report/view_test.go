package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

var testNow = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func spinRun() domain.BatchRun {
	return domain.BatchRun{
		ID:         "5f0c9a7e-2b1d-4c55-9d0e-1a2b3c4d5e6f",
		Workflow:   domain.WorkflowSpin,
		StartedAt:  testNow.Add(-90 * time.Second),
		FinishedAt: testNow,
		Results: []domain.BatchResult{
			{
				AccountName: "alice",
				Success:     true,
				Message:     "Plush Pepe (500⭐)",
				Spin: &domain.SpinReport{
					Type:      domain.SpinTypeFree,
					Attempts:  2,
					Prize:     &domain.RewardItem{Name: "Plush Pepe", ExchangeValue: 500},
					HighValue: true,
				},
			},
			{
				AccountName: "bob",
				Message:     "cooldown",
				Reason:      domain.FailureCooldown,
				ErrorKind:   domain.KindRemoteBusinessRule,
			},
		},
	}
}

func TestRenderRunSummary(t *testing.T) {
	output, err := RenderRun(spinRun(), RenderOptions{Now: testNow})

	require.NoError(t, err)
	assert.Contains(t, output, "Free spin run 5f0c9a7e")
	assert.Contains(t, output, "accounts: 2  ok: 1  failed: 1  high-value: 1  took 1m30s")
	assert.Contains(t, output, " 50%")
	assert.Contains(t, output, "alice")
	assert.Contains(t, output, "Plush Pepe (500⭐)")
	assert.Contains(t, output, "bob")
	assert.Contains(t, output, "[cooldown]")
}

func TestRenderEmptyRun(t *testing.T) {
	output, err := RenderRun(domain.BatchRun{Workflow: domain.WorkflowBalance}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "Balance run")
	assert.Contains(t, output, "No accounts selected.")
}

func TestRenderBalanceRunShowsGiftsAndTotals(t *testing.T) {
	batch := domain.BatchRun{
		Workflow: domain.WorkflowBalance,
		Results: []domain.BatchResult{
			{
				AccountName: "alice",
				Success:     true,
				Message:     "1.2k⭐, balance 12, 1 gift(s) worth 350⭐",
				Balance: &domain.BalanceReport{
					StarsBalance: 1200,
					Balance:      12,
					Gifts: []domain.GiftDetail{
						{Name: "Desk Calendar", ExchangeValue: 350, Status: domain.InventoryStatusInProgress},
					},
				},
			},
			{
				AccountName: "carol",
				Success:     true,
				Message:     "40⭐, balance 0",
				Balance:     &domain.BalanceReport{StarsBalance: 40},
			},
		},
	}

	output, err := RenderRun(batch, RenderOptions{HighlightAbove: 1000})

	require.NoError(t, err)
	assert.Contains(t, output, "Desk Calendar 350⭐ (in_progress)")
	assert.Contains(t, output, "★")
	assert.Contains(t, output, "total stars: 1.2k⭐")
	assert.Contains(t, output, "total gifts: 1 worth 350⭐")
}

func TestRenderAccounts(t *testing.T) {
	output, err := RenderAccounts([]domain.Account{
		{Name: "alice", Status: domain.AuthStatusAuthenticated, StarsBalance: 350, CheckedAt: testNow.Add(-3 * time.Hour)},
		{Name: "bob", Status: domain.AuthStatusInvalid, CheckedAt: testNow.Add(-50 * time.Hour), Disabled: true},
		{Name: "carol"},
	}, RenderOptions{Now: testNow})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 3")
	assert.Contains(t, output, "alice authenticated 350⭐ (checked 3 hours ago)")
	assert.Contains(t, output, "bob invalid 0⭐ (checked 2 days ago) [disabled]")
	assert.Contains(t, output, "carol unauthenticated 0⭐ (never checked)")
}

func TestRenderAccountsEmpty(t *testing.T) {
	output, err := RenderAccounts(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "No accounts registered.")
}

func TestRenderHistory(t *testing.T) {
	earlier := spinRun()
	earlier.StartedAt = testNow.Add(-30 * time.Hour)

	output, err := RenderHistory([]domain.BatchRun{
		{ID: "abcdef0123", Workflow: domain.WorkflowPaidSpin, StartedAt: testNow.Add(-time.Hour), Results: []domain.BatchResult{{AccountName: "alice", Success: true}}},
		earlier,
	}, RenderOptions{Now: testNow})

	require.NoError(t, err)
	assert.Contains(t, output, "runs: 2")
	assert.Contains(t, output, "10:00 Paid spin 1/1 ok abcdef01")
	assert.Contains(t, output, "05:00 on 13 Feb Free spin 1/2 ok 5f0c9a7e")
}

func TestFormatChecked(t *testing.T) {
	tests := []struct {
		name    string
		checked time.Time
		want    string
	}{
		{name: "never", want: "never checked"},
		{name: "recent", checked: testNow.Add(-10 * time.Minute), want: "checked just now"},
		{name: "one hour", checked: testNow.Add(-90 * time.Minute), want: "checked 1 hour ago"},
		{name: "one day", checked: testNow.Add(-25 * time.Hour), want: "checked 1 day ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatChecked(tt.checked, testNow))
		})
	}
}

func TestExportWritesRunAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "last.json")

	require.NoError(t, Export(path, spinRun()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded exportedRun
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, domain.WorkflowSpin, decoded.Workflow)
	assert.Equal(t, 2, decoded.Total)
	assert.Equal(t, 1, decoded.HighValue)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "Plush Pepe", decoded.Results[0].Prize)
	assert.Equal(t, int64(500), decoded.Results[0].PrizeValue)
	assert.Equal(t, "remote_business_rule", decoded.Results[1].ErrorKind)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(exportFileMode), info.Mode().Perm())
}
