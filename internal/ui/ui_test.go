package ui

import (
	"strings"
	"sync"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/glebovdev/soundq/internal/manager"
	"github.com/glebovdev/soundq/internal/sound"
)

type fakeSource struct {
	mu      sync.Mutex
	infos   []manager.Info
	volumes []float64
}

func (f *fakeSource) Snapshot() []manager.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]manager.Info, len(f.infos))
	copy(out, f.infos)
	return out
}

func (f *fakeSource) SetVolume(volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volume)
}

func newTestMonitor(t *testing.T, infos ...manager.Info) (*Monitor, *fakeSource) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	src := &fakeSource{infos: infos}
	return NewMonitor(src, config.DefaultConfig()), src
}

func TestNewPlayingSpinner(t *testing.T) {
	spinner := NewPlayingSpinner()

	if spinner == nil {
		t.Fatal("NewPlayingSpinner() returned nil")
	}

	if len(spinner.Frames) < 2 {
		t.Errorf("Expected at least 2 frames, got %d", len(spinner.Frames))
	}

	for i, frame := range spinner.Frames {
		if frame == "" {
			t.Errorf("Frame[%d] is empty", i)
		}
	}

	if spinner.FPS <= 0 {
		t.Error("PlayingSpinner.FPS should be positive")
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0:00.0"},
		{3, "0:03.0"},
		{61.25, "1:01.3"},
		{599.96, "10:00.0"},
		{-2, "0:00.0"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatClock(tt.seconds); got != tt.expected {
				t.Errorf("formatClock(%v) = %q, want %q", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestFormatLoops(t *testing.T) {
	tests := []struct {
		name      string
		completed uint64
		planned   sound.Repeats
		expected  string
	}{
		{"finite", 1, sound.Times(3), "1/3"},
		{"not started", 0, sound.Times(1), "0/1"},
		{"infinite", 7, sound.Infinite(), "7/∞"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLoops(tt.completed, tt.planned); got != tt.expected {
				t.Errorf("formatLoops() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, progressWidth / 2},
		{100, progressWidth},
		{150, progressWidth},
		{-5, 0},
	}

	for _, tt := range tests {
		bar := renderProgressBar(tt.percent)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderProgressBar(%d) filled %d cells, want %d", tt.percent, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != progressWidth {
			t.Errorf("renderProgressBar(%d) is %d cells wide, want %d", tt.percent, got, progressWidth)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	if got := progressPercent(5, 10); got != 50 {
		t.Errorf("progressPercent(5, 10) = %d, want 50", got)
	}
	if got := progressPercent(5, 0); got != 0 {
		t.Errorf("progressPercent(5, 0) = %d, want 0", got)
	}
}

func TestFormatScale(t *testing.T) {
	if got := formatScale(0); got != "-" {
		t.Errorf("formatScale(0) = %q, want -", got)
	}
	if got := formatScale(0.98); got != "×0.980" {
		t.Errorf("formatScale(0.98) = %q, want ×0.980", got)
	}
}

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"empty slice", []string{}, ""},
		{"single part", []string{"2 sounds"}, "2 sounds"},
		{"two parts", []string{"2 sounds", "1 playing"}, "2 sounds │ 1 playing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinParts(tt.parts); got != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	infos := []manager.Info{
		{Status: sound.StatusPlaying, QueueDepth: 3},
		{Status: sound.StatusReady},
	}

	got := renderStatus(infos, 70, false)
	want := "2 sounds │ 1 playing │ 3 buffers │ vol 70%"
	if got != want {
		t.Errorf("renderStatus() = %q, want %q", got, want)
	}

	if got := renderStatus(nil, 70, true); !strings.HasSuffix(got, "muted") {
		t.Errorf("renderStatus() muted = %q, want muted suffix", got)
	}
}

func TestRefreshSoundTable(t *testing.T) {
	ui, src := newTestMonitor(t,
		manager.Info{ID: "b", Title: "zap", Status: sound.StatusReady, Active: true, PlayingLoops: sound.Times(1), Length: 2},
		manager.Info{ID: "a", Title: "drone", Status: sound.StatusPlaying, Active: true, PlayingLoops: sound.Infinite(), QueueDepth: 6, ClockScale: 1, Time: 1, Length: 4},
	)

	ui.refresh()

	if rows := ui.soundTable.GetRowCount(); rows != 3 {
		t.Fatalf("GetRowCount() = %d, want 3", rows)
	}
	if got := ui.soundTable.GetCell(1, 1).Text; got != "drone" {
		t.Errorf("first row = %q, want drone", got)
	}
	if got := ui.soundTable.GetCell(1, 4).Text; got != "0/∞" {
		t.Errorf("loops cell = %q, want 0/∞", got)
	}
	if got := ui.soundTable.GetCell(1, 5).Text; got != "6" {
		t.Errorf("queue cell = %q, want 6", got)
	}
	if got := ui.soundTable.GetCell(2, 2).Text; got != "0:00.0 / 0:02.0" {
		t.Errorf("position cell = %q", got)
	}

	src.mu.Lock()
	src.infos = src.infos[:1]
	src.mu.Unlock()
	ui.refresh()

	if rows := ui.soundTable.GetRowCount(); rows != 2 {
		t.Errorf("GetRowCount() after removal = %d, want 2", rows)
	}
}

func TestVolumeKeys(t *testing.T) {
	ui, src := newTestMonitor(t)
	ui.currentVolume = 50

	ui.globalInputHandler(tcell.NewEventKey(tcell.KeyRune, '+', tcell.ModNone))
	if ui.currentVolume != 55 {
		t.Errorf("currentVolume = %d after +, want 55", ui.currentVolume)
	}

	ui.globalInputHandler(tcell.NewEventKey(tcell.KeyRune, 'm', tcell.ModNone))
	if !ui.isMuted || ui.currentVolume != 0 {
		t.Errorf("after mute isMuted=%v currentVolume=%d", ui.isMuted, ui.currentVolume)
	}

	ui.globalInputHandler(tcell.NewEventKey(tcell.KeyRune, '-', tcell.ModNone))
	if ui.isMuted || ui.currentVolume != 55 {
		t.Errorf("volume key should unmute, isMuted=%v currentVolume=%d", ui.isMuted, ui.currentVolume)
	}

	want := []float64{0.55, 0, 0.55}
	if len(src.volumes) != len(want) {
		t.Fatalf("SetVolume calls = %v, want %v", src.volumes, want)
	}
	for i := range want {
		if src.volumes[i] != want[i] {
			t.Errorf("SetVolume #%d = %v, want %v", i, src.volumes[i], want[i])
		}
	}
}

func TestVolumeClamped(t *testing.T) {
	ui, _ := newTestMonitor(t)
	ui.currentVolume = 98

	ui.adjustVolume(VolumeStep)
	if ui.currentVolume != config.MaxVolume {
		t.Errorf("currentVolume = %d, want %d", ui.currentVolume, config.MaxVolume)
	}
}

func TestUnhandledKeyPassesThrough(t *testing.T) {
	ui, _ := newTestMonitor(t)
	event := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	if got := ui.globalInputHandler(event); got != event {
		t.Error("unhandled key was swallowed")
	}
}
