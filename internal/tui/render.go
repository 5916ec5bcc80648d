package tui

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/hangview/internal/models"
)

const (
	minCellWidth  = 12
	minCellHeight = 4
)

// paneRow is the panes sharing one top edge, left to right.
type paneRow struct {
	y, height float64
	panes     []int
}

// rowsOf groups pane indexes by their top edge. Grid layouts give one row
// per layout row; explicit layouts give one row per distinct top edge.
func rowsOf(panes []models.Pane) []paneRow {
	var rows []paneRow
	for i, p := range panes {
		idx := slices.IndexFunc(rows, func(r paneRow) bool { return math.Abs(r.y-p.Position.Y) < 1e-6 })
		if idx < 0 {
			rows = append(rows, paneRow{y: p.Position.Y})
			idx = len(rows) - 1
		}
		rows[idx].panes = append(rows[idx].panes, i)
		rows[idx].height = max(rows[idx].height, p.Position.Height)
	}
	slices.SortFunc(rows, func(a, b paneRow) int { return cmp.Compare(a.y, b.y) })
	for _, r := range rows {
		slices.SortFunc(r.panes, func(a, b int) int { return cmp.Compare(panes[a].Position.X, panes[b].Position.X) })
	}
	return rows
}

// cellSize scales a fractional extent to terminal cells.
func cellSize(fraction float64, total, minimum int) int {
	return max(minimum, int(math.Floor(fraction*float64(total))))
}

// renderGrid draws the panes of state into a width x height block.
func renderGrid(theme Theme, state models.GridState, width, height int, showIDs bool) string {
	if len(state.Panes) == 0 {
		return theme.style(theme.Muted).Render("(no panes)")
	}
	var lines []string
	for _, row := range rowsOf(state.Panes) {
		rowHeight := cellSize(row.height, height, minCellHeight)
		cells := make([]string, 0, len(row.panes))
		for _, i := range row.panes {
			p := state.Panes[i]
			cells = append(cells, renderPane(theme, p, i == state.ActivePaneIndex, cellSize(p.Position.Width, width, minCellWidth), rowHeight, showIDs))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}

func renderPane(theme Theme, p models.Pane, active bool, width, height int, showIDs bool) string {
	border := lipgloss.NormalBorder()
	color := theme.Pane
	switch {
	case active:
		border = lipgloss.ThickBorder()
		color = theme.ActivePane
	case p.IsEmpty():
		color = theme.EmptyPane
	}
	box := lipgloss.NewStyle().
		Border(border).
		BorderForeground(lipgloss.Color(color)).
		Padding(0, 1)
	innerWidth := max(1, width-box.GetHorizontalFrameSize())
	innerHeight := max(1, height-box.GetVerticalFrameSize())

	title := p.Label
	if active {
		title += " *"
	}
	lines := []string{theme.style(theme.Header).Bold(true).Render(truncateLine(title, innerWidth))}
	if showIDs && p.ID != "" {
		lines = append(lines, theme.style(theme.Muted).Render(truncateLine(p.ID, innerWidth)))
	}
	if p.IsEmpty() {
		lines = append(lines, theme.style(theme.Muted).Render("empty"))
	}
	for _, ref := range p.ContentRefs {
		lines = append(lines, theme.style(theme.Foreground).Render(truncateLine(ref, innerWidth)))
	}
	if len(lines) > innerHeight {
		lines = lines[:innerHeight]
	}
	return box.Width(innerWidth).Height(innerHeight).Render(strings.Join(lines, "\n"))
}

// describeLayout summarises the grid shape for the header.
func describeLayout(state models.GridState) string {
	return fmt.Sprintf("%s  panes=%d  active=%d", state.Layout.Label(), state.NumPanes(), state.ActivePaneIndex)
}

func truncateLine(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= width {
		return text
	}
	runes := []rune(text)
	if width <= 3 || len(runes) <= width {
		return string(runes[:min(width, len(runes))])
	}
	return string(runes[:width-3]) + "..."
}
