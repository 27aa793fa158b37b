// Package tray provides a system tray menu for a mudra session.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/events"
)

// Tray represents the system tray application. It follows session events
// to keep the menu current.
type Tray struct {
	onToggle func(playing bool) error
	onOpen   func()
	onQuit   func()
	playing  bool
	trained  bool
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuScore     *systray.MenuItem
	menuLastRound *systray.MenuItem
}

// New creates a new Tray in the stopped state.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback run when play/stop is clicked. A non-nil
// error leaves the state unchanged.
func (t *Tray) OnToggle(fn func(playing bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run when the open menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra rock, paper, scissors")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.playing), "Start or stop the game")
	if !t.trained {
		t.menuToggle.Disable()
	}
	systray.AddSeparator()

	t.menuScore = systray.AddMenuItem(scoreTitle(0, 0), "Current score")
	t.menuScore.Disable()
	t.menuLastRound = systray.AddMenuItem("Last: none", "Last round")
	t.menuLastRound.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser...", "Open the capture and training page")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the play/stop menu item click.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	playing := !t.playing
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock; it emits events that land in Publish.
	if callback != nil {
		if err := callback(playing); err != nil {
			return
		}
	}
	t.setPlaying(playing)
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Publish implements events.Sink.
func (t *Tray) Publish(e events.Event) {
	switch e.Type {
	case events.Trained:
		t.mu.Lock()
		t.trained = true
		if t.menuToggle != nil {
			t.menuToggle.Enable()
		}
		t.mu.Unlock()
	case events.GameStarted:
		t.setPlaying(true)
	case events.GameStopped:
		t.setPlaying(false)
	case events.RoundResolved:
		if rd, ok := e.Data.(events.RoundData); ok {
			t.SetRound(rd)
		}
	}
}

func (t *Tray) setPlaying(playing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = playing
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(playing))
	}
}

// SetRound shows the score and the result of rd.
func (t *Tray) SetRound(rd events.RoundData) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuScore != nil {
		t.menuScore.SetTitle(scoreTitle(rd.HumanScore, rd.ComputerScore))
	}
	if t.menuLastRound != nil {
		t.menuLastRound.SetTitle(roundTitle(rd))
	}
}

// IsPlaying returns the play state shown in the menu.
func (t *Tray) IsPlaying() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playing
}

func toggleTitle(playing bool) string {
	if playing {
		return "■ Stop"
	}
	return "▶ Play"
}

func scoreTitle(human, computer int) string {
	return fmt.Sprintf("You %d : %d Computer", human, computer)
}

func roundTitle(rd events.RoundData) string {
	var verdict string
	switch rd.Outcome {
	case "human":
		verdict = "you win"
	case "computer":
		verdict = "computer wins"
	default:
		verdict = "tie"
	}
	return fmt.Sprintf("Last: %s vs %s, %s", rd.Human, rd.Computer, verdict)
}
