package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Nomadcxx/embress/internal/database"
)

// ReviewActions performs the triage decisions taken in the review screen.
type ReviewActions interface {
	WhitelistFile(ctx context.Context, path string) error
	WhitelistDir(ctx context.Context, dir string) error
	Dismiss(ctx context.Context, path string) error
	// Rescan runs a sub-path scan of dir and returns a one-line summary.
	Rescan(ctx context.Context, dir string) (string, error)
	Queue(ctx context.Context) ([]database.UnrenamedFile, error)
}

type reviewKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	File      key.Binding
	Directory key.Binding
	Dismiss   key.Binding
	Rescan    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k reviewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.File, k.Directory, k.Dismiss, k.Rescan, k.Quit}
}

func (k reviewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.File, k.Directory, k.Dismiss, k.Rescan},
		{k.Help, k.Quit},
	}
}

var reviewKeys = reviewKeyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	File:      key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "whitelist file")),
	Directory: key.NewBinding(key.WithKeys("W"), key.WithHelp("W", "whitelist directory")),
	Dismiss:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
	Rescan:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan directory")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
	Quit:      key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

type reviewDoneMsg struct {
	status string
	items  []database.UnrenamedFile
	err    error
}

// ReviewModel is the bubbletea model behind `embress review`.
type ReviewModel struct {
	ctx     context.Context
	actions ReviewActions
	items   []database.UnrenamedFile
	cursor  int
	offset  int
	height  int
	keys    reviewKeyMap
	help    help.Model
	status  string
	busy    bool
	Decided int
}

// NewReviewModel starts a review over items.
func NewReviewModel(ctx context.Context, actions ReviewActions, items []database.UnrenamedFile) ReviewModel {
	return ReviewModel{
		ctx:     ctx,
		actions: actions,
		items:   items,
		height:  20,
		keys:    reviewKeys,
		help:    help.New(),
	}
}

func (m ReviewModel) Init() tea.Cmd { return nil }

// Items returns what is still queued.
func (m ReviewModel) Items() []database.UnrenamedFile { return m.items }

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height - 6
		if m.height < 3 {
			m.height = 3
		}
		m.help.Width = msg.Width
		m.clamp()
		return m, nil

	case reviewDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = Error("✗ ") + msg.err.Error()
			return m, nil
		}
		m.Decided++
		m.status = Success("✓ ") + msg.status
		if msg.items != nil {
			m.items = msg.items
		}
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m ReviewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.clamp()
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		m.clamp()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case len(m.items) == 0:
		return m, nil
	case key.Matches(msg, m.keys.File):
		path := m.items[m.cursor].Path
		return m.run(func(ctx context.Context) (string, error) {
			return "whitelisted " + filepath.Base(path), m.actions.WhitelistFile(ctx, path)
		})
	case key.Matches(msg, m.keys.Directory):
		dir := filepath.Dir(m.items[m.cursor].Path)
		return m.run(func(ctx context.Context) (string, error) {
			return "whitelisted " + dir, m.actions.WhitelistDir(ctx, dir)
		})
	case key.Matches(msg, m.keys.Dismiss):
		path := m.items[m.cursor].Path
		return m.run(func(ctx context.Context) (string, error) {
			return "dismissed " + filepath.Base(path), m.actions.Dismiss(ctx, path)
		})
	case key.Matches(msg, m.keys.Rescan):
		dir := filepath.Dir(m.items[m.cursor].Path)
		return m.run(func(ctx context.Context) (string, error) {
			return m.actions.Rescan(ctx, dir)
		})
	}
	return m, nil
}

// run executes an action off the update loop and reloads the queue.
func (m ReviewModel) run(action func(context.Context) (string, error)) (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = Dim("working...")
	ctx, actions := m.ctx, m.actions
	return m, func() tea.Msg {
		status, err := action(ctx)
		if err != nil {
			return reviewDoneMsg{err: err}
		}
		items, err := actions.Queue(ctx)
		if err != nil {
			return reviewDoneMsg{err: err}
		}
		if items == nil {
			items = []database.UnrenamedFile{}
		}
		return reviewDoneMsg{status: status, items: items}
	}
}

func (m *ReviewModel) clamp() {
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

func (m ReviewModel) View() string {
	var b strings.Builder
	b.WriteString(Action(fmt.Sprintf("Unrenamed files (%d)", len(m.items))) + "\n\n")

	if len(m.items) == 0 {
		b.WriteString(Success("Nothing left to review") + "\n")
	}
	end := m.offset + m.height
	if end > len(m.items) {
		end = len(m.items)
	}
	for i := m.offset; i < end; i++ {
		item := m.items[i]
		line := fmt.Sprintf("%s  %s", item.Path, Dim(item.Reason))
		if i == m.cursor {
			line = selectedStyle.Render("> "+item.Path) + "  " + Dim(item.Reason)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
