// Command region-ocr-resident is the tray app: a global hotkey starts a
// region selection and the recognised text lands on the clipboard.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"region-ocr/src/browser"
	"region-ocr/src/capture"
	"region-ocr/src/clipboard"
	"region-ocr/src/config"
	"region-ocr/src/eventloop"
	"region-ocr/src/hotkey"
	"region-ocr/src/notify"
	"region-ocr/src/overlay"
	"region-ocr/src/pipeline"
	"region-ocr/src/runtimeinit"
	"region-ocr/src/singleinstance"
	"region-ocr/src/sink"
	"region-ocr/src/tray"
	"region-ocr/src/worker"
)

type mainOptions struct {
	envPath    string
	apiKeyPath string
	kind       string
	verbose    bool
	noTray     bool
}

func main() {
	// systray must own the main thread on some platforms.
	runtime.LockOSThread()
	enableDPIAwareness()

	if err := newRootCmd(&mainOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "region-ocr-resident",
		Short:         "Resident region OCR with a global hotkey",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.envPath, "env", "", "Path to a .env file")
	f.StringVar(&opts.apiKeyPath, "api-key-file", "", "Path to the OCR API key file (highest precedence)")
	f.StringVar(&opts.kind, "kind", "screenshot", "Capture source: screenshot or video (video needs BROWSER_URL)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging to stderr")
	f.BoolVar(&opts.noTray, "no-tray", false, "Run without a tray icon")
	return cmd
}

func run(opts mainOptions) error {
	kind, err := capture.ParseKind(opts.kind)
	if err != nil {
		return err
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{EnvPathOverride: opts.envPath, APIKeyPathOverride: opts.apiKeyPath},
		Verbose:     opts.verbose,
		Poster:      newPoster(opts.noTray),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.Config, rt.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resident := singleinstance.NewServer(logger)
	if err := resident.Start(ctx); err != nil {
		return fmt.Errorf("another instance seems to be running: %w", err)
	}
	defer resident.Close()

	if err := clipboard.Init(); err != nil {
		// Results are still recorded in history.
		logger.Warn("clipboard unavailable", "error", err)
	}

	combo, err := hotkey.ParseCombo(cfg.Hotkey)
	if err != nil {
		return err
	}
	hub := hotkey.NewHub()
	defer hub.Close()

	var (
		host     capture.Host = capture.Desktop{}
		selector overlay.Selector
	)
	if cfg.BrowserURL != "" {
		page, err := browser.Open(ctx, browser.Config{ControlURL: cfg.BrowserURL, MinSize: cfg.MinSelection, Logger: logger})
		if err != nil {
			return err
		}
		defer page.Close()
		host, selector = page, page
	} else {
		if kind == capture.KindVideo {
			return errors.New("video capture needs BROWSER_URL")
		}
		selector = overlay.NewDesktopSelector(hub, cfg.MinSelection, logger)
	}

	var history pipeline.Recorder
	if rt.History != nil {
		history = rt.History
	}
	ctrl, err := pipeline.New(pipeline.Options{
		Selector:    selector,
		Capturer:    capture.NewAdapter(host, logger),
		Enhancer:    rt.Enhancer,
		Transcriber: rt.Transcriber,
		Target:      sink.ClipboardTarget{},
		History:     history,
		Notifier:    rt.Notifier,
		Logger:      logger,
		Kind:        kind,
		Mode:        cfg.DefaultMode,
		Language:    cfg.Language,
		Deadline:    cfg.Deadline(),
		MinSize:     cfg.MinSelection,
	})
	if err != nil {
		return err
	}
	ctrl.Observe(func(from, to pipeline.State) {
		logger.Debug("state", "from", from, "to", to)
	})
	ctrl.Observe(tray.ShowState)

	loop := eventloop.New(eventloop.Options{
		Runner:   ctrl,
		Pool:     worker.New(1, logger),
		Notifier: rt.Notifier,
		Logger:   logger,
	})
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	go serveDelegated(ctx, resident, loop, logger)
	hotkey.Listen(ctx, hub, combo, logger, loop.Trigger)

	logger.Info("region OCR ready",
		"hotkey", combo.String(),
		"mode", cfg.DefaultMode,
		"kind", kind,
		"endpoint", cfg.Endpoint,
		"port", resident.Port())

	if opts.noTray {
		<-ctx.Done()
	} else {
		go func() {
			<-ctx.Done()
			tray.Quit()
		}()
		tray.Run(tray.Menu{OnCapture: loop.Trigger, OnQuit: cancel, About: combo.String()})
		cancel()
	}

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("region OCR stopped")
	return nil
}

// serveDelegated turns run requests from other invocations into triggers
// and answers each with the rendered result.
func serveDelegated(ctx context.Context, srv singleinstance.Server, loop *eventloop.Loop, logger *slog.Logger) {
	for {
		conn, err := srv.Next(ctx)
		if err != nil {
			return
		}
		format := conn.Request().Format
		loop.TriggerWith(func(out *sink.Output, err error) {
			go func() {
				if rerr := respond(conn, format, out, err); rerr != nil {
					logger.Warn("delegated reply failed", "error", rerr)
				}
			}()
		})
	}
}

func respond(conn singleinstance.Conn, format sink.Format, out *sink.Output, runErr error) error {
	defer conn.Close()
	if runErr != nil {
		return conn.RespondError(runErr.Error())
	}
	var buf bytes.Buffer
	if err := sink.Render(&buf, out, format); err != nil {
		return conn.RespondError(err.Error())
	}
	return conn.RespondSuccess(buf.String())
}

// newPoster shows notices in the tray tooltip, falling back to the log.
func newPoster(noTray bool) notify.Poster {
	logPoster := notify.LogPoster{}
	if noTray {
		return logPoster
	}
	return notify.PosterFunc(func(level notify.Level, title, message string) error {
		_ = logPoster.Post(level, title, message)
		if err := tray.Post(level, title, message); err != nil {
			slog.Debug("tray notice skipped", "error", err)
		}
		return nil
	})
}
