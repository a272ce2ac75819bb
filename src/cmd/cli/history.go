package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"region-ocr/src/sink"
)

func newHistoryCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear recent results",
	}

	var (
		limit  int
		format string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Print recent results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sink.ParseFormat(format)
			if err != nil {
				return err
			}
			rt, err := g.bootstrap(cmd, "", false)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.History == nil {
				return fmt.Errorf("history database %s is unavailable", rt.Config.HistoryDB)
			}

			entries, err := rt.History.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range entries {
				if f != sink.FormatJSON {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "# %s  %s  %s  %d lines\n",
						e.Time.Local().Format("2006-01-02 15:04:05"), e.Source, e.Mode, e.LineCount)
				}
				if err := sink.Render(out, e.Output(), f); err != nil {
					return err
				}
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries to show (0 for all kept)")
	list.Flags().StringVar(&format, "format", "text", "Output format: text, numbered or json")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.bootstrap(cmd, "", false)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.History == nil {
				return fmt.Errorf("history database %s is unavailable", rt.Config.HistoryDB)
			}
			n, err := rt.History.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}
