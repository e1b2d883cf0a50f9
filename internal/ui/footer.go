package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundq/internal/manager"
	"github.com/glebovdev/soundq/internal/sound"
	"github.com/rivo/tview"
)

func joinParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " │ " + parts[i]
	}
	return result
}

// renderStatus summarizes the last snapshot and the master volume.
func renderStatus(infos []manager.Info, volume int, muted bool) string {
	playing, buffers := 0, 0
	for _, info := range infos {
		if info.Status == sound.StatusPlaying {
			playing++
		}
		buffers += info.QueueDepth
	}

	vol := fmt.Sprintf("vol %d%%", volume)
	if muted {
		vol = "muted"
	}
	return joinParts([]string{
		fmt.Sprintf("%d sounds", len(infos)),
		fmt.Sprintf("%d playing", playing),
		fmt.Sprintf("%d buffers", buffers),
		vol,
	})
}

func (ui *Monitor) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" [%s]+/-[-] vol  [%s]m[-] %s  [%s]q[-] quit ",
		keyColor, keyColor, muteText, keyColor)
}

func (ui *Monitor) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *Monitor) fill(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *Monitor) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fill(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fill(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *Monitor) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fill(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fill(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		statusTextY := helpBoxEnd + statusHeight/2
		tview.Print(screen, statusText, x, statusTextY, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *Monitor) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		ui.mu.Lock()
		helpText := ui.getHelpText()
		statusText := " " + renderStatus(ui.lastInfos, ui.currentVolume, ui.isMuted) + " "
		ui.mu.Unlock()

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
