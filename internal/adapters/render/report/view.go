package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
	// HighlightAbove marks balances at or above this many Stars.
	HighlightAbove int64
}

func renderRun(batch domain.BatchRun, opts RenderOptions, s styles) string {
	summary := batch.Summary()
	lines := []string{
		s.title.Render(runTitle(batch)),
		s.header.Render(summaryLine(summary, batch.Duration())),
	}

	if summary.Total == 0 {
		lines = append(lines, s.empty.Render("No accounts selected."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, successLine(summary, s))

	results := make([]string, 0, len(batch.Results))
	for _, result := range batch.Results {
		results = append(results, renderResult(result, opts, s))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, results...)))

	if batch.Workflow == domain.WorkflowBalance {
		lines = append(lines, s.section.Render(balanceTotals(batch.Results, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func runTitle(batch domain.BatchRun) string {
	title := fmt.Sprintf("%s run", workflowLabel(batch.Workflow))
	if batch.ID == "" {
		return title
	}
	return fmt.Sprintf("%s %s", title, shortID(batch.ID))
}

func summaryLine(summary domain.BatchSummary, took time.Duration) string {
	line := fmt.Sprintf("accounts: %d  ok: %d  failed: %d", summary.Total, summary.Succeeded, summary.Failed)
	if summary.HighValue > 0 {
		line += fmt.Sprintf("  high-value: %d", summary.HighValue)
	}
	if took > 0 {
		line += fmt.Sprintf("  took %s", took.Round(time.Second))
	}
	return line
}

func successLine(summary domain.BatchSummary, s styles) string {
	percent := 0.0
	if summary.Total > 0 {
		percent = float64(summary.Succeeded) * 100 / float64(summary.Total)
	}

	percentStyle := lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.key.Render("success:"),
		" ",
		renderProgressBar(percent, 24, s),
		" ",
		percentStyle.Render(fmt.Sprintf("%3.0f%%", percent)),
	)
}

func renderResult(result domain.BatchResult, opts RenderOptions, s styles) string {
	mark := s.success.Render("✓")
	message := s.detail.Render(result.Message)
	if !result.Success {
		mark = s.warning.Render("✗")
		message = s.meta.Render(result.Message)
	}
	if result.Spin != nil && result.Spin.HighValue {
		message = s.highlight.Render(result.Message)
	}

	line := lipgloss.JoinHorizontal(lipgloss.Top, mark, " ", s.account.Render(result.AccountName), " ", message)
	if result.Reason != domain.FailureNone && !result.Success {
		line += " " + s.meta.Render(fmt.Sprintf("[%s]", result.Reason))
	}

	parts := []string{line}
	if result.Balance != nil {
		if opts.HighlightAbove > 0 && result.Balance.StarsBalance >= opts.HighlightAbove {
			parts[0] += " " + s.highlight.Render("★")
		}
		for _, gift := range result.Balance.Gifts {
			parts = append(parts, s.meta.Render(fmt.Sprintf("    %s %s⭐ (%s)", gift.Name, domain.CompactStars(gift.ExchangeValue), strings.ToLower(string(gift.Status)))))
		}
	}
	if result.Liquidation != nil {
		for _, name := range result.Liquidation.Exchanged {
			parts = append(parts, s.meta.Render("    exchanged "+name))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func balanceTotals(results []domain.BatchResult, s styles) string {
	var stars, gifts int64
	var giftCount int
	for _, result := range results {
		if result.Balance == nil {
			continue
		}
		stars += result.Balance.StarsBalance
		gifts += result.Balance.GiftsValue()
		giftCount += len(result.Balance.Gifts)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.key.Render(fmt.Sprintf("total stars: %s⭐", domain.CompactStars(stars))),
		s.key.Render(fmt.Sprintf("total gifts: %d worth %s⭐", giftCount, domain.CompactStars(gifts))),
	)
}

func renderAccounts(accounts []domain.Account, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(accounts))),
	}

	if len(accounts) == 0 {
		lines = append(lines, s.empty.Render("No accounts registered."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := make([]string, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, accountLine(account, opts, s))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func accountLine(account domain.Account, opts RenderOptions, s styles) string {
	status := statusLabel(account.Status)
	statusStyle := s.detail
	switch account.Status {
	case domain.AuthStatusAuthenticated:
		statusStyle = s.success
	case domain.AuthStatusInvalid:
		statusStyle = s.warning
	}

	parts := []string{
		s.account.Render(account.Name),
		statusStyle.Render(status),
		s.key.Render(fmt.Sprintf("%s⭐", domain.CompactStars(account.StarsBalance))),
		s.meta.Render(fmt.Sprintf("(%s)", formatChecked(account.CheckedAt, opts.Now))),
	}
	if account.Disabled {
		parts = append(parts, s.warning.Render("[disabled]"))
	}

	return strings.Join(parts, " ")
}

func statusLabel(status domain.AuthStatus) string {
	if status == "" {
		return string(domain.AuthStatusUnauthenticated)
	}
	return string(status)
}

func renderHistory(runs []domain.BatchRun, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Run history"),
		s.header.Render(fmt.Sprintf("runs: %d", len(runs))),
	}

	if len(runs) == 0 {
		lines = append(lines, s.empty.Render("No runs recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := make([]string, 0, len(runs))
	for _, batch := range runs {
		summary := batch.Summary()
		rows = append(rows, strings.Join([]string{
			s.meta.Render(formatStarted(batch.StartedAt, opts.Now)),
			s.account.Render(workflowLabel(batch.Workflow)),
			s.detail.Render(fmt.Sprintf("%d/%d ok", summary.Succeeded, summary.Total)),
			s.meta.Render(shortID(batch.ID)),
		}, " "))
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func workflowLabel(workflow domain.Workflow) string {
	switch workflow {
	case domain.WorkflowSpin:
		return "Free spin"
	case domain.WorkflowPaidSpin:
		return "Paid spin"
	case domain.WorkflowBalance:
		return "Balance"
	case domain.WorkflowValidate:
		return "Validate"
	case domain.WorkflowActivate:
		return "Activate"
	case domain.WorkflowExchange:
		return "Exchange"
	default:
		return "Unknown"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderProgressBar(filledPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	fraction := clampPercent(filledPercent) / 100.0
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatStarted(startedAt, now time.Time) string {
	if startedAt.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return startedAt.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := startedAt.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return startedAt.Format("15:04")
	}

	return startedAt.Format("15:04 on 02 Jan")
}

func formatChecked(checkedAt, now time.Time) string {
	if checkedAt.IsZero() {
		return "never checked"
	}
	if now.IsZero() || checkedAt.After(now) {
		return "checked " + checkedAt.Format(time.RFC3339)
	}

	elapsed := now.Sub(checkedAt)
	if elapsed < time.Hour {
		return "checked just now"
	}
	if elapsed < 24*time.Hour {
		hours := int(math.Floor(elapsed.Hours()))
		suffix := "hours"
		if hours == 1 {
			suffix = "hour"
		}
		return fmt.Sprintf("checked %d %s ago", hours, suffix)
	}

	days := int(math.Floor(elapsed.Hours() / 24))
	suffix := "days"
	if days == 1 {
		suffix = "day"
	}
	return fmt.Sprintf("checked %d %s ago", days, suffix)
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, 240 faded to 255 bright.
	colorCode := int(240.0 + 15.0*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}
