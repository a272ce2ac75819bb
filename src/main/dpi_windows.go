//go:build windows

package main

import (
	"log/slog"
	"syscall"
)

// enableDPIAwareness makes mouse hook coordinates and desktop captures
// both physical pixels, so desktop selections map 1:1.
func enableDPIAwareness() {
	shcore := syscall.NewLazyDLL("Shcore.dll")
	setProcessDpiAwareness := shcore.NewProc("SetProcessDpiAwareness")
	const processPerMonitorDPIAware = 2
	if setProcessDpiAwareness.Find() == nil {
		ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		slog.Debug("dpi: per-monitor awareness", "ok", ret == 0)
		return
	}

	user32 := syscall.NewLazyDLL("user32.dll")
	setProcessDPIAware := user32.NewProc("SetProcessDPIAware")
	if setProcessDPIAware.Find() == nil {
		ret, _, _ := setProcessDPIAware.Call()
		slog.Debug("dpi: system awareness (fallback)", "ok", ret != 0)
		return
	}
	slog.Warn("dpi: no awareness API available; selections may be scaled")
}
