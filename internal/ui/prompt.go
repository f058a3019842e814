package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// SecretPrompt is a single-line masked input, used for private keys.
type SecretPrompt struct {
	title     string
	input     textinput.Model
	done      bool
	cancelled bool
}

// NewSecretPrompt creates a focused masked prompt
func NewSecretPrompt(title string) SecretPrompt {
	ti := textinput.New()
	ti.Placeholder = ""
	ti.CharLimit = 130
	ti.Width = 70
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Focus()

	return SecretPrompt{title: title, input: ti}
}

// Value returns the trimmed input
func (p SecretPrompt) Value() string {
	return strings.TrimSpace(p.input.Value())
}

// Cancelled reports whether the user pressed esc or ctrl+c
func (p SecretPrompt) Cancelled() bool {
	return p.cancelled
}

func (p SecretPrompt) Init() tea.Cmd {
	return textinput.Blink
}

func (p SecretPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			p.done = true
			return p, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			p.cancelled = true
			return p, tea.Quit
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p SecretPrompt) View() string {
	if p.done || p.cancelled {
		return ""
	}
	return HelpStyle.Render(p.title) + "\n" + PromptStyle.Render(SymbolPrompt) + " " + p.input.View() + "\n"
}

// ReadSecret runs a SecretPrompt on in/out.
func ReadSecret(title string, in io.Reader, out io.Writer) (string, error) {
	final, err := tea.NewProgram(NewSecretPrompt(title), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", err
	}
	p := final.(SecretPrompt)
	if p.Cancelled() {
		return "", ErrCancelled
	}
	return p.Value(), nil
}
