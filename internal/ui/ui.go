package ui

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/glebovdev/soundq/internal/manager"
	"github.com/rivo/tview"
)

const (
	VolumeStep         = 5
	HeaderHeight       = 3
	FooterHeightWide   = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow = 6 // Narrow: 2 rows × 3 lines each
	FooterBreakpoint   = 100
	RefreshInterval    = time.Second / 10
)

// SoundSource is what the monitor watches.
type SoundSource interface {
	Snapshot() []manager.Info
	SetVolume(volume float64)
}

// Monitor is a read-only terminal view of the sounds on a manager. Only the
// master volume can be changed from it.
type Monitor struct {
	app           *tview.Application
	source        SoundSource
	soundTable    *tview.Table
	helpPanel     *tview.Box
	contentLayout *tview.Flex
	mainLayout    *tview.Flex
	stopUpdates   chan struct{}
	stopOnce      sync.Once

	config          *config.Config
	currentVolume   int
	isMuted         bool
	lastFooterWidth int
	mu              sync.Mutex

	animationFrame int
	playingSpinner *PlayingSpinner
	lastInfos      []manager.Info

	colors struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		headerForeground tcell.Color
		playing          tcell.Color
		stopped          tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
	}
}

func NewMonitor(source SoundSource, cfg *config.Config) *Monitor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &Monitor{
		app:            tview.NewApplication(),
		source:         source,
		stopUpdates:    make(chan struct{}),
		config:         cfg,
		currentVolume:  cfg.Volume,
		playingSpinner: NewPlayingSpinner(),
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.headerForeground = config.GetColor(cfg.Theme.HeaderForeground)
	ui.colors.playing = config.GetColor(cfg.Theme.Playing)
	ui.colors.stopped = config.GetColor(cfg.Theme.Stopped)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)

	ui.setupUI()
	return ui
}

func (ui *Monitor) stop() {
	ui.stopOnce.Do(func() {
		close(ui.stopUpdates)
	})
	ui.app.Stop()
}

// Shutdown stops the monitor from external callers (e.g., signal handlers).
func (ui *Monitor) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

// Run blocks until the user quits or Shutdown is called.
func (ui *Monitor) Run() error {
	ui.app.SetRoot(ui.mainLayout, true)
	ui.configureScreen()
	ui.refresh()
	ui.startRefresh()
	return ui.app.Run()
}

func (ui *Monitor) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *Monitor) setupUI() {
	header := ui.createHeader()
	ui.soundTable = ui.createSoundTable()
	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.soundTable, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(ui.globalInputHandler)
}

func (ui *Monitor) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName + " · " + config.AppTagline)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.headerForeground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.headerForeground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
		FPS:    RefreshInterval,
	}
}

func (ui *Monitor) getPlayingIndicator() string {
	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

// refresh takes a snapshot and redraws the table. It must run on the
// application goroutine once Run has started.
func (ui *Monitor) refresh() {
	infos := ui.source.Snapshot()
	ui.mu.Lock()
	ui.animationFrame++
	ui.lastInfos = infos
	ui.mu.Unlock()
	ui.refreshSoundTable(infos)
}

func (ui *Monitor) startRefresh() {
	go func() {
		refreshTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer refreshTicker.Stop()

		for {
			select {
			case <-ui.stopUpdates:
				return
			case <-refreshTicker.C:
				ui.app.QueueUpdateDraw(ui.refresh)
			}
		}
	}()
}

func (ui *Monitor) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		}
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}
