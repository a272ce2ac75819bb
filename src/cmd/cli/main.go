package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"region-ocr/src/apperr"
	"region-ocr/src/config"
	"region-ocr/src/runtimeinit"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type globalOptions struct {
	envPath    string
	apiKeyPath string
	endpoint   string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if apperr.Informational(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "region-ocr",
		Short:         "Select a screen region and transcribe its text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Verbose logging to stderr")
	pf.StringVar(&g.envPath, "env", "", "Path to a .env file")
	pf.StringVar(&g.apiKeyPath, "api-key-file", "", "Path to the OCR API key file (highest precedence)")
	pf.StringVar(&g.endpoint, "endpoint", "", "OCR endpoint URL")

	cmd.AddCommand(
		newTranscribeCmd(g),
		newUploadCmd(g),
		newHistoryCmd(g),
		newServeCmd(g),
	)
	return cmd
}

func (g *globalOptions) bootstrap(cmd *cobra.Command, mode string, noHistory bool) (*runtimeinit.Runtime, error) {
	var stderr io.Writer
	if g.verbose {
		stderr = cmd.ErrOrStderr()
	}
	return runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			EnvPathOverride:     g.envPath,
			APIKeyPathOverride:  g.apiKeyPath,
			DefaultModeOverride: mode,
			EndpointOverride:    g.endpoint,
		},
		Verbose:   g.verbose,
		Stderr:    stderr,
		NoHistory: noHistory,
	})
}

// readInput reads a file, or stdin for "-", enforcing the upload size
// limit.
func readInput(path string, stdin io.Reader) (string, []byte, error) {
	var (
		data []byte
		err  error
		name = filepath.Base(path)
	)
	if path == "-" {
		name = "stdin.png"
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
	} else {
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		defer f.Close()
		data, err = io.ReadAll(io.LimitReader(f, maxFileSize+1))
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return "", nil, apperr.New(apperr.InvalidInput, "input file is empty")
	}
	if len(data) > maxFileSize {
		return "", nil, apperr.Newf(apperr.InvalidInput, "input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return name, data, nil
}
