// Package tray shows the resident app's status icon and menu.
package tray

import (
	"errors"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"region-ocr/src/notify"
	"region-ocr/src/pipeline"
)

const appTitle = "Region OCR"

// Menu holds the callbacks of the tray menu items. Callbacks run on the
// tray goroutine and must not block.
type Menu struct {
	OnCapture func()
	OnQuit    func()
	// About is an extra line shown in the About item, e.g. the hotkey.
	About string
}

var (
	mu    sync.Mutex
	ready bool

	errNotReady = errors.New("tray: not running")
)

// Run shows the tray icon and blocks until Quit. It must be called from
// the main goroutine on platforms that require it.
func Run(m Menu) {
	systray.Run(func() { onReady(m) }, func() {
		mu.Lock()
		ready = false
		mu.Unlock()
	})
}

// Quit removes the tray icon and makes Run return.
func Quit() { systray.Quit() }

func onReady(m Menu) {
	systray.SetIcon(Icon())
	systray.SetTitle(appTitle)
	systray.SetTooltip(Tooltip(pipeline.Idle))

	mCapture := systray.AddMenuItem("Capture region", "Select a screen region to transcribe")
	about := appTitle
	if m.About != "" {
		about = fmt.Sprintf("%s (%s)", appTitle, m.About)
	}
	mAbout := systray.AddMenuItem(about, "")
	mAbout.Disable()
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	mu.Lock()
	ready = true
	mu.Unlock()

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				if m.OnCapture != nil {
					m.OnCapture()
				}
			case <-mQuit.ClickedCh:
				if m.OnQuit != nil {
					m.OnQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

// Tooltip is the tooltip text for a pipeline state.
func Tooltip(s pipeline.State) string {
	if s == pipeline.Idle {
		return appTitle
	}
	return fmt.Sprintf("%s: %s...", appTitle, s)
}

// ShowState updates the tooltip. It is a no-op before the tray is ready,
// so it can be registered as a pipeline observer unconditionally.
func ShowState(_, to pipeline.State) {
	mu.Lock()
	ok := ready
	mu.Unlock()
	if ok {
		systray.SetTooltip(Tooltip(to))
	}
}

// NoticeText formats a notice for the tooltip.
func NoticeText(level notify.Level, title, message string) string {
	text := appTitle + ": " + title
	if message != "" {
		text += " - " + message
	}
	if level == notify.LevelError {
		text = "[!] " + text
	}
	return text
}

// Post shows a notice in the tooltip until the next state change. It
// satisfies notify.Poster through notify.PosterFunc.
func Post(level notify.Level, title, message string) error {
	mu.Lock()
	ok := ready
	mu.Unlock()
	if !ok {
		return errNotReady
	}
	systray.SetTooltip(NoticeText(level, title, message))
	return nil
}
