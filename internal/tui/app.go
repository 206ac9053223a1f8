package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/search"
	"github.com/mmcdole/mediasync/internal/tui/styles"
)

// Catalog is the subset of the client the viewer drives
type Catalog interface {
	Username() (string, bool)
	Snapshot() domain.MediaCollection
	Subscribe() (<-chan domain.MediaCollection, func())
	Fetch(ctx context.Context) (domain.MediaCollection, error)
	Delete(ctx context.Context, record domain.MediaRecord) error
}

const (
	tickInterval = 100 * time.Millisecond
	statusDelay  = 3 * time.Second
	chromeHeight = 4
)

// Model is the Bubble Tea model for the collection viewer
type Model struct {
	Catalog Catalog
	Keys    KeyMap

	updates     <-chan domain.MediaCollection
	unsubscribe func()

	// Records is the latest snapshot; nil while logged out
	Records domain.MediaCollection
	rows    []search.Result

	filterActive bool
	filterInput  textinput.Model

	Cursor int
	Offset int

	Width  int
	Height int
	Ready  bool

	StatusMsg    string
	StatusIsErr  bool
	Loading      bool
	SpinnerFrame int
}

// NewModel subscribes to collection changes and seeds the view with the current snapshot
func NewModel(c Catalog) Model {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.AccentStyle
	ti.TextStyle = styles.TitleStyle

	updates, unsubscribe := c.Subscribe()
	m := Model{
		Catalog:     c,
		Keys:        DefaultKeyMap(),
		updates:     updates,
		unsubscribe: unsubscribe,
		filterInput: ti,
	}
	m.setRecords(c.Snapshot())
	return m
}

// Close releases the broadcaster subscription
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts listening for changes and loads the collection
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{WaitForChangeCmd(m.updates), TickCmd(tickInterval)}
	if _, ok := m.Catalog.Username(); ok {
		cmds = append(cmds, RefreshCmd(m.Catalog))
	}
	return tea.Batch(cmds...)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		return m, TickCmd(tickInterval)

	case CollectionChangedMsg:
		m.setRecords(msg.Records)
		return m, WaitForChangeCmd(m.updates)

	case SubscriptionClosedMsg:
		return m, nil

	case RefreshedMsg:
		m.Loading = false
		return m.setStatus(fmt.Sprintf("Loaded %d items", msg.Count), false)

	case RecordDeletedMsg:
		m.Loading = false
		return m.setStatus("Deleted "+msg.Record.Name, false)

	case ErrMsg:
		m.Loading = false
		return m.setStatus(msg.Error(), true)

	case clearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		switch {
		case key.Matches(msg, m.Keys.Escape):
			m.filterActive = false
			m.filterInput.Blur()
			m.filterInput.SetValue("")
			m.applyFilter()
			return m, nil
		case msg.Type == tea.KeyEnter:
			m.filterActive = false
			m.filterInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.Keys.Down):
		if m.Cursor < len(m.rows)-1 {
			m.Cursor++
		}
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.Keys.Filter):
		m.filterActive = true
		return m, m.filterInput.Focus()

	case key.Matches(msg, m.Keys.Escape):
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.applyFilter()
		}
		return m, nil

	case key.Matches(msg, m.Keys.Refresh):
		if _, ok := m.Catalog.Username(); !ok {
			return m.setStatus("Not logged in", true)
		}
		m.Loading = true
		return m, RefreshCmd(m.Catalog)

	case key.Matches(msg, m.Keys.Delete):
		record, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.Loading = true
		return m, DeleteCmd(m.Catalog, record)
	}

	return m, nil
}

// Selected returns the record under the cursor
func (m Model) Selected() (domain.MediaRecord, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.rows) {
		return domain.MediaRecord{}, false
	}
	return m.rows[m.Cursor].Record, true
}

// Rows returns the records currently visible after filtering
func (m Model) Rows() []domain.MediaRecord {
	out := make([]domain.MediaRecord, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.Record
	}
	return out
}

func (m Model) setStatus(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.StatusMsg = text
	m.StatusIsErr = isErr
	return m, ClearStatusCmd(statusDelay)
}

func (m *Model) setRecords(records domain.MediaCollection) {
	var selectedID string
	if rec, ok := m.Selected(); ok {
		selectedID = rec.ID
	}

	m.Records = records
	m.applyFilter()

	if selectedID == "" {
		return
	}
	for i, r := range m.rows {
		if r.Record.ID == selectedID {
			m.Cursor = i
			break
		}
	}
	m.clampCursor()
}

func (m *Model) applyFilter() {
	m.rows = search.Filter(m.Records, m.filterInput.Value())
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.Cursor >= len(m.rows) {
		m.Cursor = len(m.rows) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}

	visible := m.visibleRows()
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+visible {
		m.Offset = m.Cursor - visible + 1
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m Model) visibleRows() int {
	if !m.Ready {
		return len(m.rows) + 1
	}
	return max(1, m.Height-chromeHeight)
}

// View renders the viewer
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch {
	case m.Records == nil:
		b.WriteString(styles.DimStyle.Render("Not logged in. Run `mediasync login` to start."))
	case len(m.rows) == 0 && m.filterInput.Value() != "":
		b.WriteString(styles.DimStyle.Render("No matches"))
	case len(m.rows) == 0:
		b.WriteString(styles.DimStyle.Render("Collection is empty"))
	default:
		b.WriteString(m.renderRows())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := styles.TitleStyle.Render("mediasync")
	user := styles.DimStyle.Render("logged out")
	if name, ok := m.Catalog.Username(); ok {
		user = styles.SubtitleStyle.Render(name)
	}
	count := ""
	if m.Records != nil {
		count = styles.DimStyle.Render(fmt.Sprintf(" · %d items", len(m.Records)))
	}

	left := title + "  " + user + count
	width := max(m.Width, lipgloss.Width(left))
	return styles.HeaderStyle.Width(width).Render(left)
}

func (m Model) renderRows() string {
	end := min(len(m.rows), m.Offset+m.visibleRows())
	lines := make([]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		lines = append(lines, m.renderRow(m.rows[i], i == m.Cursor))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(r search.Result, selected bool) string {
	desc := r.Record.Description()
	if selected {
		line := r.Record.Name
		if desc != "" {
			line += "  " + desc
		}
		return styles.SelectedStyle.Render(line)
	}

	line := highlightMatches(r.Record.Name, r.MatchedIndexes)
	if desc != "" {
		line += "  " + styles.DimStyle.Render(desc)
	}
	return styles.RowStyle.Render(line)
}

// highlightMatches styles the matched byte offsets of name
func highlightMatches(name string, matched []int) string {
	if len(matched) == 0 {
		return name
	}
	hits := make(map[int]bool, len(matched))
	for _, i := range matched {
		hits[i] = true
	}

	var b strings.Builder
	for i, r := range name {
		if hits[i] {
			b.WriteString(styles.MatchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var left string
	switch {
	case m.filterActive || m.filterInput.Value() != "":
		left = m.filterInput.View()
	case m.Loading:
		left = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render("Syncing...")
	case m.StatusMsg != "":
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.SuccessStyle.Render(m.StatusMsg)
		}
	}

	hints := make([]string, 0, len(m.Keys.ShortHelp()))
	for _, b := range m.Keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, styles.AccentStyle.Render(h.Key)+" "+styles.DimStyle.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return styles.StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// RenderSpinner returns the spinner frame for the given tick
func RenderSpinner(frame int) string {
	return styles.AccentStyle.Render(styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])
}
