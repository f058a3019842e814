package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrCancelled = errors.New("selection cancelled")

// SelectorItem represents an item in the selector
type SelectorItem struct {
	ID          string
	Label       string
	Description string
	Current     bool
}

// Selector is an interactive list selector
type Selector struct {
	title    string
	items    []SelectorItem
	cursor   int
	selected int
	active   bool
	width    int
}

// NewSelector creates a new selector
func NewSelector(title string, items []SelectorItem) Selector {
	selected := 0
	for i, item := range items {
		if item.Current {
			selected = i
			break
		}
	}

	return Selector{
		title:    title,
		items:    items,
		cursor:   selected,
		selected: selected,
		active:   true,
		width:    80,
	}
}

// SetWidth sets the selector width
func (s *Selector) SetWidth(w int) {
	s.width = w
}

// Active returns whether the selector is active
func (s *Selector) Active() bool {
	return s.active
}

// Selected returns the selected item ID, or empty if cancelled
func (s *Selector) Selected() string {
	if s.selected >= 0 && s.selected < len(s.items) {
		return s.items[s.selected].ID
	}
	return ""
}

// Cancelled returns whether the selector was cancelled
func (s *Selector) Cancelled() bool {
	return !s.active && s.selected == -1
}

// Update handles selector input
func (s *Selector) Update(msg tea.Msg) (*Selector, tea.Cmd) {
	if !s.active {
		return s, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.items)-1 {
				s.cursor++
			}
		case "enter":
			s.selected = s.cursor
			s.active = false
		case "esc", "q", "ctrl+c":
			s.selected = -1
			s.active = false
		}
	case tea.WindowSizeMsg:
		s.width = msg.Width
	}

	return s, nil
}

// View renders the selector
func (s *Selector) View() string {
	if !s.active {
		return ""
	}

	var b strings.Builder

	b.WriteString(HelpStyle.Render(s.title + " (↑/↓ navigate, enter select, esc cancel)"))
	b.WriteString("\n\n")

	labelWidth := 44
	if s.width > 0 && s.width < 60 {
		labelWidth = s.width / 2
	}

	for i, item := range s.items {
		isCursor := i == s.cursor

		if isCursor {
			b.WriteString(SelectorCursor.Render(SymbolArrow) + " ")
		} else {
			b.WriteString("  ")
		}

		display := item.Label
		if display == "" {
			display = item.ID
		}
		label := fmt.Sprintf("%-*s", labelWidth, display)
		if isCursor {
			b.WriteString(SelectorActive.Render(label))
		} else {
			b.WriteString(SelectorItemStyle.Render(label))
		}

		if item.Description != "" {
			desc := item.Description
			if item.Current {
				desc += " (current)"
			}
			b.WriteString(SelectorDim.Render(desc))
		}

		b.WriteString("\n")
	}

	return b.String()
}

// selectorProgram adapts a Selector to a standalone bubbletea program.
type selectorProgram struct {
	s Selector
}

func (m selectorProgram) Init() tea.Cmd {
	return nil
}

func (m selectorProgram) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.s.Update(msg)
	if !m.s.Active() {
		return m, tea.Quit
	}
	return m, nil
}

func (m selectorProgram) View() string {
	return m.s.View()
}

// Pick runs a selector on in/out and returns the chosen item ID.
func Pick(title string, items []SelectorItem, in io.Reader, out io.Writer) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("nothing to select")
	}
	final, err := tea.NewProgram(selectorProgram{s: NewSelector(title, items)},
		tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", err
	}
	s := final.(selectorProgram).s
	if s.Cancelled() {
		return "", ErrCancelled
	}
	return s.Selected(), nil
}
