package main

import (
	"github.com/spf13/cobra"

	"region-ocr/src/capture"
	"region-ocr/src/overlay"
	"region-ocr/src/pipeline"
	"region-ocr/src/runtimeinit"
	"region-ocr/src/sink"
)

func newUploadCmd(g *globalOptions) *cobra.Command {
	var (
		file      string
		format    string
		noHistory bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Post an image file unchanged to the upload endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sink.ParseFormat(format)
			if err != nil {
				return err
			}
			name, data, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			rt, err := g.bootstrap(cmd, "", noHistory)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctrl, err := pipeline.New(pipeline.Options{
				Selector:    overlay.FixedSelector{},
				Capturer:    capture.NewAdapter(nil, rt.Logger),
				Enhancer:    rt.Enhancer,
				Transcriber: rt.Transcriber,
				Target:      sink.WriterTarget{Writer: cmd.OutOrStdout(), Format: f},
				History:     recorder(rt),
				Notifier:    rt.Notifier,
				Logger:      rt.Logger,
				Deadline:    rt.Config.Deadline(),
			})
			if err != nil {
				return err
			}
			_, err = ctrl.TranscribeFile(cmd.Context(), name, data, true)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Image file ('-' for stdin)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, numbered or json")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the result")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// recorder hides a missing store behind a nil interface.
func recorder(rt *runtimeinit.Runtime) pipeline.Recorder {
	if rt.History == nil {
		return nil
	}
	return rt.History
}
