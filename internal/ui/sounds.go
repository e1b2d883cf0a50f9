package ui

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundq/internal/manager"
	"github.com/glebovdev/soundq/internal/sound"
	"github.com/rivo/tview"
)

const progressWidth = 20

var soundColumns = []struct {
	title  string
	align  int
	expand int
}{
	{" ", tview.AlignLeft, 0},
	{"Sound", tview.AlignLeft, 2},
	{"Position", tview.AlignRight, 0},
	{"Progress", tview.AlignLeft, 1},
	{"Loops", tview.AlignRight, 0},
	{"Queue", tview.AlignRight, 0},
	{"Clock", tview.AlignRight, 0},
}

func (ui *Monitor) createSoundTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle("Sounds (0)").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	for col, c := range soundColumns {
		table.SetCell(0, col, tview.NewTableCell(c.title).
			SetTextColor(ui.colors.headerForeground).
			SetBackgroundColor(ui.colors.headerBackground).
			SetAlign(c.align).
			SetExpansion(c.expand).
			SetSelectable(false))
	}

	return table
}

// sortInfos orders sounds by title, then ID, so rows stay put between
// refreshes.
func sortInfos(infos []manager.Info) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Title != infos[j].Title {
			return infos[i].Title < infos[j].Title
		}
		return infos[i].ID < infos[j].ID
	})
}

func (ui *Monitor) refreshSoundTable(infos []manager.Info) {
	sortInfos(infos)

	for row := ui.soundTable.GetRowCount() - 1; row > len(infos); row-- {
		ui.soundTable.RemoveRow(row)
	}
	for i, info := range infos {
		ui.setSoundRow(i+1, info)
	}
	ui.soundTable.SetTitle(fmt.Sprintf("Sounds (%d)", len(infos)))
}

func (ui *Monitor) setSoundRow(row int, info manager.Info) {
	color := ui.colors.stopped
	icon := " "
	if info.Status == sound.StatusPlaying {
		color = ui.colors.playing
		icon = ui.getPlayingIndicator()
	} else if !info.Active {
		icon = "⏸"
	}

	title := info.Title
	if title == "" {
		title = info.Name
	}

	cells := []string{
		icon,
		title,
		formatPosition(info.Time, info.Length),
		renderProgressBar(progressPercent(info.Time, info.Length)),
		formatLoops(info.LoopsCompleted, info.PlayingLoops),
		fmt.Sprintf("%d", info.QueueDepth),
		formatScale(info.ClockScale),
	}

	for col, text := range cells {
		cell := tview.NewTableCell(text).
			SetTextColor(color).
			SetAlign(soundColumns[col].align).
			SetExpansion(soundColumns[col].expand)
		if col == 1 {
			cell.SetTextColor(ui.colors.foreground).SetMaxWidth(40)
		}
		ui.soundTable.SetCell(row, col, cell)
	}
}

func renderProgressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := (percent * progressWidth) / 100
	empty := progressWidth - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func progressPercent(t, length float64) int {
	if length <= 0 || math.IsNaN(t) {
		return 0
	}
	return int(t / length * 100)
}

// formatClock renders seconds as m:ss.t.
func formatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int(seconds*10 + 0.5)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

func formatPosition(t, length float64) string {
	return formatClock(t) + " / " + formatClock(length)
}

func formatLoops(completed uint64, planned sound.Repeats) string {
	if planned.IsInfinite() {
		return fmt.Sprintf("%d/∞", completed)
	}
	return fmt.Sprintf("%d/%d", completed, planned.Count())
}

func formatScale(scale float64) string {
	if scale == 0 {
		return "-"
	}
	return fmt.Sprintf("×%.3f", scale)
}
