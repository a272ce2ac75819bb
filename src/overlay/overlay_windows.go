//go:build windows

package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"

	"region-ocr/src/capture"
	"region-ocr/src/region"
)

const (
	overlayClassName      = "RegionOCROverlay"
	overlayTitle          = "Select Region - drag to select, ESC cancels"
	overlayPollTimerID    = 1
	overlayPollIntervalMs = 25
)

var (
	user32                       = syscall.NewLazyDLL("user32.dll")
	gdi32                        = syscall.NewLazyDLL("gdi32.dll")
	procAllowSetForegroundWindow = user32.NewProc("AllowSetForegroundWindow")
	procGetAsyncKeyState         = user32.NewProc("GetAsyncKeyState")
	procCreatePen                = gdi32.NewProc("CreatePen")
	procRectangle                = gdi32.NewProc("Rectangle")

	registerOnce sync.Once
	registerErr  error
	crossCursor  win.HCURSOR

	// The window procedure has no user pointer, so the open overlay lives
	// here. Only one overlay is shown at a time.
	sessionMu sync.Mutex
	session   *windowSession
)

var errOverlayOpen = errors.New("overlay: a selection window is already open")

// NewDesktopSelector returns the desktop selector for this platform: a
// topmost window over the frozen desktop.
func NewDesktopSelector(_ EventSource, minSize float64, logger *slog.Logger) Selector {
	return NewWindowSelector(minSize, logger)
}

// WindowSelector covers the virtual screen with a topmost window showing a
// frozen copy of the desktop and tracks the drag on it. Clicks never reach
// the applications underneath.
type WindowSelector struct {
	Tracker *region.Tracker
	Logger  *slog.Logger
}

func NewWindowSelector(minSize float64, logger *slog.Logger) *WindowSelector {
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowSelector{
		Tracker: region.NewTracker(minSize, region.SpaceViewport),
		Logger:  logger,
	}
}

type windowSession struct {
	ctx     context.Context
	tracker *region.Tracker
	logger  *slog.Logger

	origin image.Point
	size   image.Point
	bgra   []byte

	sel     *region.Selection
	current region.Rect
	escDown bool

	done      bool
	rect      region.Rect
	cancelled bool
	err       error
}

func (w *WindowSelector) Select(ctx context.Context) (region.Rect, bool, error) {
	if err := ctx.Err(); err != nil {
		return region.Rect{}, false, err
	}

	img, viewport, err := capture.Desktop{}.CaptureViewport(ctx)
	if err != nil {
		return region.Rect{}, false, fmt.Errorf("overlay: capture desktop: %w", err)
	}
	s := &windowSession{
		ctx:     ctx,
		tracker: w.Tracker,
		logger:  w.Logger,
		origin:  image.Pt(int(viewport.X), int(viewport.Y)),
		size:    image.Pt(int(viewport.Width), int(viewport.Height)),
		bgra:    toBGRA(img),
	}

	sessionMu.Lock()
	if session != nil {
		sessionMu.Unlock()
		return region.Rect{}, false, errOverlayOpen
	}
	session = s
	sessionMu.Unlock()
	defer func() {
		sessionMu.Lock()
		session = nil
		sessionMu.Unlock()
	}()

	// The window and its message loop must stay on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := registerClass(); err != nil {
		return region.Rect{}, false, err
	}
	hwnd := win.CreateWindowEx(
		win.WS_EX_TOPMOST,
		syscall.StringToUTF16Ptr(overlayClassName),
		syscall.StringToUTF16Ptr(overlayTitle),
		win.WS_POPUP|win.WS_VISIBLE,
		int32(s.origin.X), int32(s.origin.Y), int32(s.size.X), int32(s.size.Y),
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if hwnd == 0 {
		return region.Rect{}, false, errors.New("overlay: create window failed")
	}
	defer win.DestroyWindow(hwnd)
	s.logger.Debug("overlay window shown", "origin", s.origin, "size", s.size)

	win.ShowWindow(hwnd, win.SW_SHOW)
	procAllowSetForegroundWindow.Call(uintptr(os.Getpid()))
	win.SetForegroundWindow(hwnd)
	win.BringWindowToTop(hwnd)
	win.SetFocus(hwnd)
	win.UpdateWindow(hwnd)

	if win.SetTimer(hwnd, overlayPollTimerID, overlayPollIntervalMs, 0) == 0 {
		s.logger.Warn("overlay: poll timer not started; Escape relies on window focus")
	}
	defer win.KillTimer(hwnd, overlayPollTimerID)

	var msg win.MSG
	for !s.done {
		ret := win.GetMessage(&msg, 0, 0, 0)
		if ret == 0 {
			s.finish(region.Rect{}, true, nil)
			break
		}
		if ret == -1 {
			s.finish(region.Rect{}, false, errors.New("overlay: GetMessage failed"))
			break
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
	return s.rect, s.cancelled, s.err
}

func registerClass() error {
	registerOnce.Do(func() {
		crossCursor = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))
		wc := win.WNDCLASSEX{
			CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
			Style:         win.CS_HREDRAW | win.CS_VREDRAW,
			LpfnWndProc:   syscall.NewCallback(overlayWndProc),
			HInstance:     win.GetModuleHandle(nil),
			HCursor:       crossCursor,
			LpszClassName: syscall.StringToUTF16Ptr(overlayClassName),
		}
		if win.RegisterClassEx(&wc) == 0 {
			registerErr = errors.New("overlay: register window class failed")
		}
	})
	return registerErr
}

func activeSession() *windowSession {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return session
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	s := activeSession()
	if s == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_LBUTTONDOWN:
		if s.sel != nil {
			return 0
		}
		sel, err := s.tracker.Begin(clientPoint(lParam, s.origin))
		if err != nil {
			s.finish(region.Rect{}, false, err)
			return 0
		}
		s.sel = sel
		s.current = region.Rect{}
		win.SetCapture(hwnd)
		redraw(hwnd)
		return 0

	case win.WM_MOUSEMOVE:
		if s.sel != nil {
			s.current = s.tracker.Update(clientPoint(lParam, s.origin), s.sel)
			redraw(hwnd)
		}
		return 0

	case win.WM_LBUTTONUP:
		if s.sel == nil {
			return 0
		}
		win.ReleaseCapture()
		r, ok := s.tracker.End(clientPoint(lParam, s.origin), s.sel)
		s.sel = nil
		if !ok {
			s.logger.Debug("selection below minimum size", "min", s.tracker.MinSize())
		}
		s.finish(r, !ok, nil)
		return 0

	case win.WM_KEYDOWN:
		if wParam == win.VK_ESCAPE {
			s.escDown = true
			s.logger.Debug("selection cancelled by Escape")
			s.finish(region.Rect{}, true, nil)
		}
		return 0

	case win.WM_TIMER:
		if wParam == overlayPollTimerID {
			s.poll()
		}
		return 0

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		s.paint(hdc)
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_SETCURSOR:
		if crossCursor != 0 {
			win.SetCursor(crossCursor)
		}
		return 1

	case win.WM_NCHITTEST:
		return uintptr(win.HTCLIENT)
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// poll catches Escape when the window never gained focus and ends the
// loop once the caller's context is done.
func (s *windowSession) poll() {
	if err := s.ctx.Err(); err != nil {
		s.finish(region.Rect{}, false, err)
		return
	}
	state, _, _ := procGetAsyncKeyState.Call(uintptr(win.VK_ESCAPE))
	down := uint16(state)&0x8001 != 0
	if down && !s.escDown {
		s.logger.Debug("selection cancelled by Escape")
		s.finish(region.Rect{}, true, nil)
	}
	s.escDown = down
}

func (s *windowSession) finish(r region.Rect, cancelled bool, err error) {
	if s.done {
		return
	}
	if s.sel != nil {
		win.ReleaseCapture()
		s.tracker.Cancel(s.sel)
		s.sel = nil
	}
	s.done, s.rect, s.cancelled, s.err = true, r, cancelled, err
}

func (s *windowSession) paint(hdc win.HDC) {
	s.paintBackground(hdc)

	hint := "Drag to select a region, ESC cancels"
	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(0x00FFFF))
	win.TextOut(hdc, 16, 16, syscall.StringToUTF16Ptr(hint), int32(len(hint)))

	if s.sel == nil || s.current.Empty() {
		return
	}
	r := s.current
	left := int32(r.X) - int32(s.origin.X)
	top := int32(r.Y) - int32(s.origin.Y)
	right := left + int32(r.Width)
	bottom := top + int32(r.Height)

	pen, _, _ := procCreatePen.Call(0, 2, 0x0000FF)
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))
	procRectangle.Call(uintptr(hdc), uintptr(left), uintptr(top), uintptr(right), uintptr(bottom))
	win.SelectObject(hdc, oldPen)
	win.SelectObject(hdc, oldBrush)
	win.DeleteObject(win.HGDIOBJ(pen))
}

func (s *windowSession) paintBackground(hdc win.HDC) {
	if len(s.bgra) == 0 {
		return
	}
	memDC := win.CreateCompatibleDC(hdc)
	defer win.DeleteDC(memDC)

	info := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(s.size.X),
			BiHeight:      -int32(s.size.Y), // top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}
	var bits unsafe.Pointer
	bmp := win.CreateDIBSection(memDC, &info.BmiHeader, win.DIB_RGB_COLORS, &bits, 0, 0)
	if bmp == 0 || bits == nil {
		return
	}
	defer win.DeleteObject(win.HGDIOBJ(bmp))

	// 32bpp rows are always DWORD aligned, so the DIB is tightly packed.
	copy(unsafe.Slice((*byte)(bits), len(s.bgra)), s.bgra)

	old := win.SelectObject(memDC, win.HGDIOBJ(bmp))
	defer win.SelectObject(memDC, old)
	win.BitBlt(hdc, 0, 0, int32(s.size.X), int32(s.size.Y), memDC, 0, 0, win.SRCCOPY)
}

func redraw(hwnd win.HWND) {
	win.InvalidateRect(hwnd, nil, false)
	win.UpdateWindow(hwnd)
}

// clientPoint converts a mouse message's client coordinates to screen
// coordinates. Captured moves outside the window arrive negative.
func clientPoint(lParam uintptr, origin image.Point) region.Point {
	x := int16(win.LOWORD(uint32(lParam)))
	y := int16(win.HIWORD(uint32(lParam)))
	return region.Point{X: float64(int(x) + origin.X), Y: float64(int(y) + origin.Y)}
}

// toBGRA returns img's pixels in the byte order of a 32bpp DIB.
func toBGRA(img image.Image) []byte {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	out := make([]byte, 4*b.Dx()*b.Dy())
	for i := 0; i+3 < len(out); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = rgba.Pix[i+2], rgba.Pix[i+1], rgba.Pix[i], rgba.Pix[i+3]
	}
	return out
}
