package main

import (
	"github.com/spf13/cobra"

	"region-ocr/src/server"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference OCR backend (Tesseract)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.bootstrap(cmd, "", true)
			if err != nil {
				return err
			}
			defer rt.Close()
			if addr == "" {
				addr = rt.Config.ServerAddr
			}
			engine := server.Tesseract{TessdataPrefix: rt.Config.TessdataPrefix}
			return server.New(engine, rt.Config.Language, rt.Logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from SERVER_ADDR)")
	return cmd
}
