// Package browser captures regions of a Chrome page over the DevTools
// protocol: viewport screenshots, <video> frames and in-page selection.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"region-ocr/src/capture"
	"region-ocr/src/enhance"
	"region-ocr/src/region"
)

type Config struct {
	// ControlURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	ControlURL string
	// URL is opened in a new tab. Empty attaches to the first open tab.
	URL      string
	Headless bool
	MinSize  float64
	Logger   *slog.Logger
}

// Page is one browser tab acting as a capture host and selector.
type Page struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	tracker *region.Tracker
	log     *slog.Logger
}

// Open connects to (or launches) Chrome and selects the tab to work on.
func Open(ctx context.Context, cfg Config) (*Page, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Page{log: log, tracker: region.NewTracker(cfg.MinSize, region.SpaceViewport)}
	wsURL := cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		p.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	p.browser = b

	page, err := p.pickPage(ctx, cfg.URL)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.page = page
	return p, nil
}

func (p *Page) pickPage(ctx context.Context, url string) (*rod.Page, error) {
	if url == "" {
		pages, err := p.browser.Pages()
		if err != nil {
			return nil, fmt.Errorf("browser: list pages: %w", err)
		}
		if len(pages) > 0 {
			return pages.First(), nil
		}
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if url == "" {
		return page, nil
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return page, nil
}

// Close disconnects and stops a launched Chrome.
func (p *Page) Close() error {
	p.tracker.CancelActive()
	return p.cleanup()
}

func (p *Page) cleanup() error {
	var err error
	if p.browser != nil {
		if p.lnch != nil {
			err = p.browser.Close()
		}
		p.browser = nil
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
		p.lnch = nil
	}
	return err
}

type viewportInfo struct {
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	DPR    float64 `json:"dpr"`
}

// CaptureViewport screenshots the visible viewport at device resolution
// and returns the CSS viewport it represents.
func (p *Page) CaptureViewport(ctx context.Context) (image.Image, region.Rect, error) {
	page := p.page.Context(ctx)
	var vp viewportInfo
	if err := evalInto(page, `() => ({w: window.innerWidth, h: window.innerHeight, dpr: window.devicePixelRatio})`, &vp); err != nil {
		return nil, region.Rect{}, fmt.Errorf("browser: read viewport: %w", err)
	}

	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return nil, region.Rect{}, fmt.Errorf("browser: screenshot: %w", err)
	}
	img, err := enhance.Decode(data)
	if err != nil {
		return nil, region.Rect{}, err
	}
	p.log.Debug("browser: viewport captured", "css", fmt.Sprintf("%gx%g", vp.Width, vp.Height),
		"raster", img.Bounds().Size(), "reported_dpr", vp.DPR)
	return img, region.Rect{Width: vp.Width, Height: vp.Height, Space: region.SpaceViewport}, nil
}

type videoInfo struct {
	Index  int     `json:"i"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	Native [2]int  `json:"native"`
	Paused bool    `json:"paused"`
}

const listVideosJS = `() => Array.from(document.querySelectorAll('video')).map((v, i) => {
	const r = v.getBoundingClientRect();
	return {i, x: r.left, y: r.top, w: r.width, h: r.height, native: [v.videoWidth, v.videoHeight], paused: v.paused};
})`

// Videos lists the page's <video> elements in document order.
func (p *Page) Videos(ctx context.Context) ([]capture.Video, error) {
	var infos []videoInfo
	if err := evalInto(p.page.Context(ctx), listVideosJS, &infos); err != nil {
		return nil, fmt.Errorf("browser: list videos: %w", err)
	}
	out := make([]capture.Video, 0, len(infos))
	for _, info := range infos {
		if info.Width <= 0 || info.Height <= 0 {
			continue
		}
		out = append(out, &video{page: p.page, info: info})
	}
	return out, nil
}

type video struct {
	page *rod.Page
	info videoInfo
}

func (v *video) Bounds() region.Rect {
	return region.Rect{X: v.info.X, Y: v.info.Y, Width: v.info.Width, Height: v.info.Height, Space: region.SpaceViewport}
}

func (v *video) NativeSize() (int, int) { return v.info.Native[0], v.info.Native[1] }

func (v *video) Playing() bool { return !v.info.Paused }

func (v *video) Pause(ctx context.Context) error {
	_, err := v.page.Context(ctx).Eval(`(i) => document.querySelectorAll('video')[i].pause()`, v.info.Index)
	if err == nil {
		v.info.Paused = true
	}
	return err
}

const frameJS = `(i) => {
	const v = document.querySelectorAll('video')[i];
	const c = document.createElement('canvas');
	c.width = v.videoWidth;
	c.height = v.videoHeight;
	c.getContext('2d').drawImage(v, 0, 0, c.width, c.height);
	return c.toDataURL('image/png');
}`

// Frame draws the current frame at native resolution through a canvas.
// Cross-origin videos taint the canvas and fail here.
func (v *video) Frame(ctx context.Context) (image.Image, error) {
	res, err := v.page.Context(ctx).Eval(frameJS, v.info.Index)
	if err != nil {
		return nil, fmt.Errorf("browser: sample frame: %w", err)
	}
	data, err := DecodeDataURL(res.Value.Str())
	if err != nil {
		return nil, err
	}
	return enhance.Decode(data)
}

// DecodeDataURL returns the payload of a base64 data URL. Bare base64 is
// accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.Contains(s[:comma], ";base64") {
			return nil, fmt.Errorf("browser: malformed data URL")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("browser: decode data URL: %w", err)
	}
	return data, nil
}

func evalInto(page *rod.Page, js string, out any) error {
	res, err := page.Eval(js)
	if err != nil {
		return err
	}
	return decodeValue(res.Value, out)
}

func decodeValue(v gson.JSON, out any) error {
	return v.Unmarshal(out)
}

var (
	_ capture.Host  = (*Page)(nil)
	_ capture.Video = (*video)(nil)
)
