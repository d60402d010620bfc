package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/zephh/chronobind/internal/adapters/addonmeta"
	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/config"
	"github.com/zephh/chronobind/internal/ports"
	"github.com/zephh/chronobind/internal/store"
	"github.com/zephh/chronobind/internal/task"
	"github.com/zephh/chronobind/internal/transfer"
)

// View represents the current view state
type View int

const (
	CharactersView View = iota
	BackupsView
	ProgressView // A task chain is running
)

// CharacterItem represents a character in the list
type CharacterItem struct {
	Character  chrono.Character
	Class      string
	Level      int
	Backups    int
	LastBackup time.Time
	TotalSize  int64
}

// BackupItem represents one backup of the selected character
type BackupItem struct {
	ID        string
	CreatedAt time.Time
	Origin    chrono.Origin
	Pinned    bool
	Size      int64
}

// Model is the main TUI model
type Model struct {
	engine   *transfer.Engine
	exec     *task.Executor
	cfg      *config.Config
	meta     ports.AddonReader
	view     View
	width    int
	height   int
	quitting bool

	// Characters view
	characters   []CharacterItem
	charCursor   int
	selectedChar chrono.Character

	// Paste source marked with 'c'
	marked    *chrono.Character
	hasMarked bool

	// Backups view
	backups      []BackupItem
	backupCursor int

	// Progress view
	running      *task.Chain
	returnView   View
	progressDone int
	progressTot  int
	progressStep string

	// Status message
	statusMsg string
	statusErr bool
}

// Key bindings
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Back   key.Binding
	Backup key.Binding
	Mark   key.Binding
	Paste  key.Binding
	Restore key.Binding
	Delete key.Binding
	Pin    key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "backups"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Backup: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "backup"),
	),
	Mark: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "copy from"),
	),
	Paste: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "paste onto"),
	),
	Restore: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "restore"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	Pin: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pin/unpin"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a TUI model over an already-built engine.
func NewModel(eng *transfer.Engine, cfg *config.Config) (*Model, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := &Model{
		engine: eng,
		exec:   task.NewExecutor(eng, nil),
		cfg:    cfg,
		meta:   addonmeta.New(osfs.New(), eng.Store().Branch()),
		view:   CharactersView,
	}
	if err := m.loadCharacters(); err != nil {
		return nil, err
	}
	return m, nil
}

// loadCharacters loads the branch's characters with their backup info
func (m *Model) loadCharacters() error {
	st := m.engine.Store()

	live, err := chrono.ScanCharacters(osfs.New(), st.Branch())
	if err != nil && !os.IsNotExist(err) {
		live = nil
	}
	backedUp, err := st.Characters()
	if err != nil {
		return err
	}

	// Union of live and backed-up characters, live order first.
	seen := make(map[string]bool)
	var all []chrono.Character
	for _, c := range append(live, backedUp...) {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		all = append(all, c)
	}

	m.characters = nil
	for _, c := range all {
		item := CharacterItem{Character: c}
		if class, level, ok := m.meta.Meta(c.Key()); ok {
			item.Class = class
			item.Level = level
		}
		if backups, err := st.List(c); err == nil {
			item.Backups = len(backups)
			for _, b := range backups {
				item.TotalSize += b.SizeBytes
			}
			if len(backups) > 0 {
				item.LastBackup = backups[0].CreatedAt
			}
		}
		m.characters = append(m.characters, item)
	}
	return nil
}

// loadBackups loads backups for the selected character
func (m *Model) loadBackups() error {
	backups, err := m.engine.Store().List(m.selectedChar)
	if err != nil {
		return err
	}

	m.backups = nil
	for _, b := range backups {
		m.backups = append(m.backups, BackupItem{
			ID:        b.ID,
			CreatedAt: b.CreatedAt,
			Origin:    b.Origin,
			Pinned:    b.Pinned,
			Size:      b.SizeBytes,
		})
	}
	return nil
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// waitForEvent blocks on the executor's sink and forwards one event.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.exec.Events()
		if !ok {
			return nil
		}
		return taskEventMsg{ev}
	}
}

type taskEventMsg struct {
	event task.Event
}

type statusMsg struct {
	msg string
	err bool
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.statusMsg = msg.msg
		m.statusErr = msg.err
		_ = m.loadCharacters()
		if m.view == BackupsView {
			_ = m.loadBackups()
		}
		return m, nil

	case taskEventMsg:
		return m.handleTaskEvent(msg.event)

	case tea.KeyMsg:
		// Clear status on any key
		m.statusMsg = ""
		m.statusErr = false

		if m.view == ProgressView {
			// Only cancellation and quit while a chain runs
			switch {
			case key.Matches(msg, keys.Cancel):
				if m.running != nil {
					m.running.Cancel()
					m.statusMsg = "Cancelling after the current step..."
				}
			case key.Matches(msg, keys.Quit):
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			m.moveCursor(-1)

		case key.Matches(msg, keys.Down):
			m.moveCursor(1)

		case key.Matches(msg, keys.Enter):
			if m.view == CharactersView && len(m.characters) > 0 {
				m.selectedChar = m.characters[m.charCursor].Character
				if err := m.loadBackups(); err != nil {
					m.statusMsg = fmt.Sprintf("Error: %v", err)
					m.statusErr = true
				} else {
					m.view = BackupsView
					m.backupCursor = 0
				}
			}

		case key.Matches(msg, keys.Back):
			if m.view == BackupsView {
				m.view = CharactersView
				m.backups = nil
			}

		case key.Matches(msg, keys.Backup):
			return m.startBackup()

		case key.Matches(msg, keys.Mark):
			if m.view == CharactersView && len(m.characters) > 0 {
				c := m.characters[m.charCursor].Character
				m.marked = &c
				m.hasMarked = true
				m.statusMsg = fmt.Sprintf("Copying from %s - select a destination and press v", c.Name)
			}

		case key.Matches(msg, keys.Paste):
			return m.startPaste()

		case key.Matches(msg, keys.Restore):
			if m.view == BackupsView && len(m.backups) > 0 {
				return m.submit(m.engine.Restore(m.backups[m.backupCursor].ID), BackupsView)
			}

		case key.Matches(msg, keys.Delete):
			if m.view == BackupsView && len(m.backups) > 0 {
				return m.submit(m.engine.Delete(m.backups[m.backupCursor].ID), BackupsView)
			}

		case key.Matches(msg, keys.Pin):
			if m.view == BackupsView && len(m.backups) > 0 {
				return m, m.togglePin(m.backups[m.backupCursor])
			}
		}
	}

	return m, nil
}

// handleTaskEvent folds one executor event into the model.
func (m *Model) handleTaskEvent(ev task.Event) (tea.Model, tea.Cmd) {
	if !ev.Terminal {
		m.progressDone = ev.Done
		m.progressTot = ev.Total
		m.progressStep = ev.Label
		return m, m.waitForEvent()
	}

	m.view = m.returnView
	m.running = nil
	switch ev.State {
	case task.StateCompleted:
		m.statusMsg = fmt.Sprintf("✓ %s", ev.Label)
	case task.StateCancelled:
		m.statusMsg = fmt.Sprintf("Cancelled: %s", ev.Label)
	default:
		m.statusMsg = fmt.Sprintf("✗ %s: %v", ev.Label, ev.Err)
		m.statusErr = true
	}

	_ = m.loadCharacters()
	if m.view == BackupsView {
		_ = m.loadBackups()
	}
	return m, m.waitForEvent()
}

// submit hands a chain to the executor and switches to the progress view.
func (m *Model) submit(chain *task.Chain, returnTo View) (tea.Model, tea.Cmd) {
	m.running = chain
	m.returnView = returnTo
	m.view = ProgressView
	m.progressDone = 0
	m.progressTot = 0
	m.progressStep = chain.Label
	m.exec.Submit(chain)
	return m, nil
}

func (m *Model) startBackup() (tea.Model, tea.Cmd) {
	var char chrono.Character
	switch m.view {
	case CharactersView:
		if len(m.characters) == 0 {
			return m, nil
		}
		char = m.characters[m.charCursor].Character
	case BackupsView:
		char = m.selectedChar
	default:
		return m, nil
	}

	sel, err := wholeTreeSelection(m.engine.Store(), char)
	if err != nil {
		m.statusMsg = fmt.Sprintf("Error: %v", err)
		m.statusErr = true
		return m, nil
	}
	return m.submit(m.engine.Backup(char, sel, false), m.view)
}

func (m *Model) startPaste() (tea.Model, tea.Cmd) {
	if m.view != CharactersView || !m.hasMarked || len(m.characters) == 0 {
		return m, nil
	}
	src := *m.marked
	dst := m.characters[m.charCursor].Character
	if src.Key() == dst.Key() {
		m.statusMsg = "Source and destination are the same character"
		m.statusErr = true
		return m, nil
	}

	sel, err := wholeTreeSelection(m.engine.Store(), src)
	if err != nil {
		m.statusMsg = fmt.Sprintf("Error: %v", err)
		m.statusErr = true
		return m, nil
	}
	m.hasMarked = false
	m.marked = nil
	return m.submit(m.engine.Paste(src, dst, sel), CharactersView)
}

func (m *Model) togglePin(b BackupItem) tea.Cmd {
	return func() tea.Msg {
		var err error
		if b.Pinned {
			err = m.engine.Store().Unpin(b.ID)
		} else {
			err = m.engine.Store().Pin(b.ID)
		}
		if err != nil {
			return statusMsg{err: true, msg: fmt.Sprintf("Pin failed: %v", err)}
		}
		if b.Pinned {
			return statusMsg{msg: fmt.Sprintf("Unpinned %s", b.ID)}
		}
		return statusMsg{msg: fmt.Sprintf("📌 Pinned %s", b.ID)}
	}
}

// wholeTreeSelection selects everything directly under the character's live
// config directory.
func wholeTreeSelection(st *store.Store, char chrono.Character) (chrono.Selection, error) {
	sel := chrono.Selection{Name: "All"}
	entries, err := os.ReadDir(char.ConfigPath(st.Branch()))
	if err != nil {
		return sel, err
	}
	for _, entry := range entries {
		sel.Paths = append(sel.Paths, entry.Name())
	}
	return sel, nil
}

// annotate builds the optional level/class suffix for a character row, driven
// by the display settings and the companion addon's metadata.
func (m *Model) annotate(c CharacterItem) string {
	var parts []string
	if m.cfg.DisplayCharacterLevels && c.Level > 0 {
		parts = append(parts, fmt.Sprintf("Lv%d", c.Level))
	}
	if m.cfg.ShowFriendlyNames && c.Class != "" {
		parts = append(parts, c.Class)
	}
	return strings.Join(parts, " ")
}

func (m *Model) moveCursor(delta int) {
	switch m.view {
	case CharactersView:
		m.charCursor += delta
		if m.charCursor < 0 {
			m.charCursor = 0
		}
		if m.charCursor >= len(m.characters) {
			m.charCursor = len(m.characters) - 1
		}
	case BackupsView:
		m.backupCursor += delta
		if m.backupCursor < 0 {
			m.backupCursor = 0
		}
		if m.backupCursor >= len(m.backups) {
			m.backupCursor = len(m.backups) - 1
		}
	}
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case CharactersView:
		content = m.renderCharactersView()
	case BackupsView:
		content = m.renderBackupsView()
	case ProgressView:
		content = m.renderProgressView()
	}

	return appStyle.Render(content)
}

func (m *Model) renderCharactersView() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render(fmt.Sprintf(" ⏳ chronobind - %s ", m.engine.Store().Branch().Label))
	b.WriteString(title)
	b.WriteString("\n\n")

	// Header
	header := fmt.Sprintf("  %-32s %8s %12s %-14s %s",
		"CHARACTER", "BACKUPS", "SIZE", "LAST BACKUP", "")
	b.WriteString(dimStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 72)))
	b.WriteString("\n")

	// List items
	visibleHeight := m.height - 10
	if visibleHeight < 5 {
		visibleHeight = 5
	}

	start := 0
	if m.charCursor >= visibleHeight {
		start = m.charCursor - visibleHeight + 1
	}

	for i := start; i < len(m.characters) && i < start+visibleHeight; i++ {
		c := m.characters[i]
		cursor := "  "
		style := normalStyle
		if i == m.charCursor {
			cursor = "▸ "
			style = selectedStyle
		}
		if m.hasMarked && m.marked.Key() == c.Character.Key() {
			style = markedStyle
		}

		backups := fmt.Sprintf("%d", c.Backups)
		if c.Backups == 0 {
			backups = "-"
		}
		size := humanize.Bytes(uint64(c.TotalSize))
		if c.TotalSize == 0 {
			size = "-"
		}
		lastBackup := "-"
		if !c.LastBackup.IsZero() {
			lastBackup = relativeTime(c.LastBackup)
		}

		line := fmt.Sprintf("%s%-32s %8s %12s %-14s %s",
			cursor, truncate(c.Character.Key(), 32), backups, size, lastBackup,
			m.annotate(c))
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	// Pad to fixed height
	for i := len(m.characters); i < visibleHeight; i++ {
		b.WriteString("\n")
	}

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")

	// Help
	help := "[↑/↓] navigate  [enter] backups  [b] backup  [c] copy from  [v] paste onto  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderBackupsView() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render(fmt.Sprintf(" ⏳ %s ", m.selectedChar.Key()))
	b.WriteString(title)
	b.WriteString("\n\n")

	if len(m.backups) == 0 {
		b.WriteString(dimStyle.Render("  No backups found"))
		b.WriteString("\n\n")
	} else {
		// Header
		header := fmt.Sprintf("  %-10s %-16s %10s %-14s %s",
			"ID", "CREATED", "SIZE", "ORIGIN", "PIN")
		b.WriteString(dimStyle.Render(header))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Repeat("─", 64)))
		b.WriteString("\n")

		visibleHeight := m.height - 10
		if visibleHeight < 5 {
			visibleHeight = 5
		}

		start := 0
		if m.backupCursor >= visibleHeight {
			start = m.backupCursor - visibleHeight + 1
		}

		for i := start; i < len(m.backups) && i < start+visibleHeight; i++ {
			v := m.backups[i]
			cursor := "  "
			style := normalStyle
			if i == m.backupCursor {
				cursor = "▸ "
				style = selectedStyle
			}

			pin := "-"
			if v.Pinned {
				pin = pinBadge.Render("📌")
			}

			line := fmt.Sprintf("%s%-10s %-16s %10s %-14s ",
				cursor, v.ID,
				v.CreatedAt.Format(chrono.DisplayTimeFormat),
				humanize.Bytes(uint64(v.Size)),
				string(v.Origin))
			b.WriteString(style.Render(line))
			b.WriteString(pin)
			b.WriteString("\n")
		}
	}

	// Pad to fixed height
	visibleHeight := m.height - 10
	for i := len(m.backups); i < visibleHeight; i++ {
		b.WriteString("\n")
	}

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")

	// Help
	help := "[↑/↓] navigate  [r] restore  [d] delete  [p] pin/unpin  [b] backup  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderProgressView() string {
	var b strings.Builder

	label := ""
	if m.running != nil {
		label = m.running.Label
	}
	title := titleStyle.Render(fmt.Sprintf(" ⏳ %s ", label))
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(normalStyle.Render("  " + m.progressStep))
	b.WriteString("\n\n")
	b.WriteString("  " + renderBar(m.progressDone, m.progressTot, 40))
	if m.progressTot > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d/%d", m.progressDone, m.progressTot)))
	}
	b.WriteString("\n")

	// Status
	b.WriteString("\n")
	if m.statusMsg != "" {
		b.WriteString(dimStyle.Render(m.statusMsg))
	}
	b.WriteString("\n")

	help := "[x] cancel after current step  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// renderBar draws a fixed-width progress bar.
func renderBar(done, total, width int) string {
	if total <= 0 {
		return dimStyle.Render(strings.Repeat("░", width))
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return successBadge.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", width-filled))
}

// relativeTime formats a time as a human-readable relative string
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate shortens a string to max characters
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
