package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"region-ocr/src/browser"
	"region-ocr/src/capture"
	"region-ocr/src/hotkey"
	"region-ocr/src/overlay"
	"region-ocr/src/pipeline"
	"region-ocr/src/region"
	"region-ocr/src/singleinstance"
	"region-ocr/src/sink"
)

type transcribeOptions struct {
	rect      string
	kind      string
	mode      string
	format    string
	file      string
	browser   string
	url       string
	headless  bool
	copy      bool
	noHistory bool
	resident  bool
}

func newTranscribeCmd(g *globalOptions) *cobra.Command {
	o := &transcribeOptions{}
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Capture a region (or read an image file) and print its text",
		Long: `Without --rect the region is dragged with the mouse: over the desktop by
default, or inside the page when --browser or --url is given. Escape cancels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.rect, "rect", "", "Fixed selection x,y,width,height instead of dragging")
	f.StringVar(&o.kind, "kind", "screenshot", "Capture source: screenshot or video")
	f.StringVar(&o.mode, "mode", "", "Enhancement mode (default from DEFAULT_MODE)")
	f.StringVar(&o.format, "format", "text", "Output format: text, numbered or json")
	f.StringVar(&o.file, "file", "", "Transcribe an image file instead of capturing ('-' for stdin)")
	f.StringVar(&o.browser, "browser", "", "DevTools websocket URL of a running Chrome")
	f.StringVar(&o.url, "url", "", "Page to open when launching Chrome")
	f.BoolVar(&o.headless, "headless", false, "Launch Chrome headless (with --url and --rect)")
	f.BoolVar(&o.copy, "copy", false, "Also copy the text to the clipboard")
	f.BoolVar(&o.noHistory, "no-history", false, "Do not record the result")
	f.BoolVar(&o.resident, "resident", false, "Let a running resident app perform the capture if one is listening")
	return cmd
}

func runTranscribe(cmd *cobra.Command, g *globalOptions, o *transcribeOptions) error {
	ctx := cmd.Context()
	format, err := sink.ParseFormat(o.format)
	if err != nil {
		return err
	}
	kind, err := capture.ParseKind(o.kind)
	if err != nil {
		return err
	}

	if o.resident && o.file == "" {
		delegated, text, err := singleinstance.NewClient().TryRun(ctx, format)
		if delegated {
			if err != nil {
				return fmt.Errorf("resident: %w", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		}
	}

	rt, err := g.bootstrap(cmd, o.mode, o.noHistory)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.Config

	var target sink.Target = sink.WriterTarget{Writer: cmd.OutOrStdout(), Format: format}
	if o.copy {
		target = sink.Multi{target, sink.ClipboardTarget{}}
	}

	var (
		host     capture.Host = capture.Desktop{}
		selector overlay.Selector
	)
	if o.file == "" {
		if o.browser == "" {
			o.browser = cfg.BrowserURL
		}
		if o.browser != "" || o.url != "" {
			page, err := browser.Open(ctx, browser.Config{
				ControlURL: o.browser,
				URL:        o.url,
				Headless:   o.headless,
				MinSize:    cfg.MinSelection,
				Logger:     rt.Logger,
			})
			if err != nil {
				return err
			}
			defer page.Close()
			host, selector = page, page
		}
		switch {
		case o.rect != "":
			r, err := region.Parse(o.rect, region.SpaceViewport)
			if err != nil {
				return err
			}
			selector = overlay.FixedSelector{Rect: r, MinSize: cfg.MinSelection}
		case selector == nil:
			hub := hotkey.NewHub()
			defer hub.Close()
			selector = overlay.NewDesktopSelector(hub, cfg.MinSelection, rt.Logger)
			fmt.Fprintln(cmd.ErrOrStderr(), "Drag to select a region, Escape to cancel.")
		}
	} else {
		selector = overlay.FixedSelector{}
	}

	ctrl, err := pipeline.New(pipeline.Options{
		Selector:    selector,
		Capturer:    capture.NewAdapter(host, rt.Logger),
		Enhancer:    rt.Enhancer,
		Transcriber: rt.Transcriber,
		Target:      target,
		History:     recorder(rt),
		Notifier:    rt.Notifier,
		Logger:      rt.Logger,
		Kind:        kind,
		Mode:        cfg.DefaultMode,
		Language:    cfg.Language,
		Deadline:    cfg.Deadline(),
		MinSize:     cfg.MinSelection,
	})
	if err != nil {
		return err
	}

	if o.file != "" {
		name, data, err := readInput(o.file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		_, err = ctrl.TranscribeFile(ctx, name, data, false)
		return err
	}
	_, err = ctrl.Run(ctx)
	return err
}
