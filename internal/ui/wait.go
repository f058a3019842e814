package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type waitDoneMsg struct {
	err error
}

// waitModel shows a spinner while a device operation runs.
type waitModel struct {
	label   string
	spinner spinner.Model
	cancel  context.CancelFunc
	err     error
	done    bool
}

func newWaitModel(label string, cancel context.CancelFunc) waitModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return waitModel{label: label, spinner: sp, cancel: cancel}
}

func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
		}
		return m, nil
	case waitDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("  %s %s %s\n", m.spinner.View(), m.label, HelpStyle.Render("(ctrl+c to cancel)"))
}

// RunWithSpinner runs fn while rendering a spinner on out. Ctrl+C cancels the
// context handed to fn. When interactive is false fn runs without any output.
func RunWithSpinner(ctx context.Context, label string, interactive bool, in io.Reader, out io.Writer, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !interactive {
		return fn(ctx)
	}

	p := tea.NewProgram(newWaitModel(label, cancel), tea.WithInput(in), tea.WithOutput(out))
	go func() {
		p.Send(waitDoneMsg{err: fn(ctx)})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	return final.(waitModel).err
}
