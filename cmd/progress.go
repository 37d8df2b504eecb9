package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

const progressBarWidth = 40

type batchProgressMsg struct {
	completed int
	total     int
}

type batchDoneMsg struct {
	run domain.BatchRun
}

type batchProgressModel struct {
	bar       progress.Model
	label     lipgloss.Style
	title     string
	execute   tea.Cmd
	completed int
	total     int
	run       domain.BatchRun
	done      bool
}

func newBatchProgressModel(title string, total int, execute tea.Cmd) batchProgressModel {
	return batchProgressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth)),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
		title:   title,
		execute: execute,
		total:   total,
	}
}

func (m batchProgressModel) Init() tea.Cmd {
	return m.execute
}

func (m batchProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case batchProgressMsg:
		m.completed = msg.completed
		m.total = msg.total
		return m, nil
	case batchDoneMsg:
		m.done = true
		m.run = msg.run
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m batchProgressModel) View() string {
	if m.done {
		return ""
	}

	percent := 0.0
	if m.total > 0 {
		percent = float64(m.completed) / float64(m.total)
	}

	return fmt.Sprintf("%s %s %d/%d", m.label.Render(m.title), m.bar.ViewAs(percent), m.completed, m.total)
}

// runBatchProgress shows a progress bar on output while execute runs and
// returns the finished run.
func runBatchProgress(ctx context.Context, output io.Writer, title string, total int, execute func(ports.ProgressFunc) domain.BatchRun) (domain.BatchRun, error) {
	var p *tea.Program
	onProgress := func(completed, total int) {
		p.Send(batchProgressMsg{completed: completed, total: total})
	}
	executeCmd := func() tea.Msg {
		return batchDoneMsg{run: execute(onProgress)}
	}

	p = tea.NewProgram(
		newBatchProgressModel(title, total, executeCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return domain.BatchRun{}, err
	}

	result, ok := finalModel.(batchProgressModel)
	if !ok {
		return domain.BatchRun{}, fmt.Errorf("unexpected final progress model type %T", finalModel)
	}

	return result.run, nil
}
