// Package tui is the interactive terminal viewer: it renders the pane grid
// and maps keys to grid and hanging protocol commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/hangview/internal/hp"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/session"
)

const (
	defaultRefreshInterval = time.Second
	defaultStatusTTL       = 5 * time.Second

	minWindowWidth  = 60
	minWindowHeight = 16
	chromeRows      = 4
)

// layoutPresets are the shapes the layout key cycles through.
var layoutPresets = []models.Layout{
	{Rows: 1, Cols: 1},
	{Rows: 1, Cols: 2},
	{Rows: 2, Cols: 1},
	{Rows: 2, Cols: 2},
	{Rows: 2, Cols: 3},
	{Rows: 3, Cols: 3},
}

// Config controls the viewer.
type Config struct {
	Theme           string
	ShowPaneIDs     bool
	RefreshInterval time.Duration
}

// Run starts the viewer on sess and blocks until the user quits or ctx is
// done.
func Run(ctx context.Context, sess *session.Session, cfg Config) error {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	program := tea.NewProgram(newModel(ctx, sess, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusErr
)

type tickMsg struct{}

type model struct {
	ctx             context.Context
	sess            *session.Session
	theme           Theme
	showIDs         bool
	refreshInterval time.Duration

	width, height int
	layoutIdx     int
	seenNotes     int
	help          bool

	statusText    string
	statusKind    statusKind
	statusExpires time.Time
	quitting      bool
}

func newModel(ctx context.Context, sess *session.Session, cfg Config) model {
	return model{
		ctx:             ctx,
		sess:            sess,
		theme:           ResolveTheme(cfg.Theme),
		showIDs:         cfg.ShowPaneIDs,
		refreshInterval: cfg.RefreshInterval,
		seenNotes:       len(sess.Notifications()),
	}
}

func (m model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.statusExpires.IsZero() && time.Now().After(m.statusExpires) {
			m.statusText = ""
		}
		m.pullNotifications()
		return m, m.tickCmd()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.help {
			m.help = false
			return m, nil
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.sess.Controller
	key := msg.String()
	switch key {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.help = true
	case "right", "l", "tab":
		m.moveActive(1)
	case "left", "h", "shift+tab":
		m.moveActive(-1)
	case "n":
		m.report(ctrl.DeltaStage(m.ctx, 1), "next stage")
	case "p":
		m.report(ctrl.DeltaStage(m.ctx, -1), "previous stage")
	case "d":
		m.report(ctrl.ApplyProtocol(m.ctx, hp.Params{ProtocolID: models.DefaultProtocolID}), "default protocol")
	case "r":
		m.report(ctrl.ApplyProtocol(m.ctx, hp.Params{}), "stage re-applied")
	case "m", "M":
		delta := 1
		if key == "M" {
			delta = -1
		}
		m.layoutIdx = (m.layoutIdx + delta + len(layoutPresets)) % len(layoutPresets)
		shape := layoutPresets[m.layoutIdx]
		if err := ctrl.SetLayoutShape(m.ctx, shape.Rows, shape.Cols); err != nil {
			m.setStatus(statusErr, err.Error())
		} else {
			m.setStatus(statusOK, "layout "+shape.Label())
		}
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			m.pressButton(int(key[0] - '1'))
		}
	}
	m.pullNotifications()
	return m, nil
}

func (m *model) moveActive(delta int) {
	state := m.sess.Grid.State()
	n := state.NumPanes()
	if n == 0 {
		return
	}
	m.sess.Grid.SetActivePane(m.ctx, (state.ActivePaneIndex+delta+n)%n)
}

func (m *model) pressButton(i int) {
	buttons := m.sess.Controller.Toolbar().Buttons()
	if i >= len(buttons) {
		return
	}
	b := buttons[i]
	m.report(m.sess.Controller.PressButton(m.ctx, b.ID), b.Label)
}

func (m *model) report(ok bool, what string) {
	if ok {
		m.setStatus(statusOK, what)
	}
}

// pullNotifications shows the newest notification raised since the last look.
func (m *model) pullNotifications() {
	notes := m.sess.Notifications()
	if len(notes) < m.seenNotes {
		m.seenNotes = 0
	}
	if len(notes) == m.seenNotes {
		return
	}
	last := notes[len(notes)-1]
	m.seenNotes = len(notes)
	kind := statusInfo
	if last.Severity == hp.SeverityError {
		kind = statusErr
	}
	m.setStatus(kind, last.Title+": "+last.Message)
}

func (m *model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.statusText = strings.TrimSpace(text)
	m.statusExpires = time.Now().Add(defaultStatusTTL)
}

func (m model) effectiveWidth() int {
	if m.width <= 0 {
		return 120
	}
	return max(m.width, minWindowWidth)
}

func (m model) effectiveHeight() int {
	if m.height <= 0 {
		return 34
	}
	return max(m.height, minWindowHeight)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	width := m.effectiveWidth()
	height := m.effectiveHeight()

	if m.help {
		return m.renderHelp(width)
	}

	state := m.sess.Grid.State()
	parts := []string{
		m.renderHeader(width, state),
		m.renderToolbar(width),
		renderGrid(m.theme, state, width, height-chromeRows, m.showIDs),
	}
	if m.statusText != "" {
		parts = append(parts, m.renderStatusLine(width))
	}
	return strings.Join(parts, "\n")
}

func (m model) renderHeader(width int, state models.GridState) string {
	protocolLabel := "(none)"
	if active, ok := m.sess.Protocols.ActiveProtocol(); ok {
		stage := active.Stage.Name
		if stage == "" {
			stage = active.Stage.ID
		}
		protocolLabel = fmt.Sprintf("%s  stage %d/%d %s", active.Protocol.ID, active.StageIndex+1, len(active.Protocol.Stages), stage)
	}
	line := fmt.Sprintf("hangview  %s  %s  %d series  (? for help)", protocolLabel, describeLayout(state), m.sess.Catalog.Len())
	return m.theme.style(m.theme.Header).Bold(true).Render(truncateLine(line, width))
}

func (m model) renderToolbar(width int) string {
	toolbar := m.sess.Controller.Toolbar()
	var parts []string
	for i, b := range toolbar.Buttons() {
		label := fmt.Sprintf("%d:%s", i+1, b.Label)
		style := m.theme.style(m.theme.Muted)
		if toolbar.IsActive(b.ID) {
			style = m.theme.style(m.theme.Accent).Bold(true)
		}
		parts = append(parts, style.Render(label))
	}
	if len(parts) == 0 {
		return m.theme.style(m.theme.Muted).Render("no protocol buttons")
	}
	return truncateLine(strings.Join(parts, "  "), width)
}

func (m model) renderStatusLine(width int) string {
	style := lipgloss.NewStyle()
	switch m.statusKind {
	case statusOK:
		style = style.Foreground(lipgloss.Color(m.theme.Success)).Bold(true)
	case statusErr:
		style = style.Foreground(lipgloss.Color(m.theme.Error)).Bold(true)
	default:
		style = style.Foreground(lipgloss.Color(m.theme.Warning))
	}
	return style.Render(truncateLine(m.statusText, max(1, width-1)))
}

func (m model) renderHelp(width int) string {
	lines := []string{
		m.theme.style(m.theme.Header).Bold(true).Render("hangview keys"),
		"left/right, tab   move the active pane",
		"m / M             next / previous layout shape",
		"n / p             next / previous stage",
		"1-9               press a protocol button",
		"d                 default protocol",
		"r                 re-apply the current stage",
		"q                 quit",
		"",
		m.theme.style(m.theme.Muted).Render("any key closes this help"),
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(0, 1).
		Width(min(width-2, 60))
	return box.Render(strings.Join(lines, "\n"))
}
