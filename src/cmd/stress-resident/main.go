// Command stress-resident fires concurrent delegated runs at a resident
// instance to check that only one run proceeds at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"region-ocr/src/apperr"
	"region-ocr/src/singleinstance"
	"region-ocr/src/sink"
)

type stressOptions struct {
	n        int
	format   string
	deadline time.Duration
}

type summary struct {
	ok, busy, failed, absent int32
	elapsed                  time.Duration
}

func (s summary) String() string {
	return fmt.Sprintf("ok=%d busy=%d err=%d no-resident=%d elapsed=%s", s.ok, s.busy, s.failed, s.absent, s.elapsed)
}

func main() {
	if err := newRootCmd(&stressOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-resident",
		Short:         "Stress test delegation to the resident app",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := sink.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			s := stress(singleinstance.NewClient(), opts.n, format, opts.deadline)
			fmt.Fprintf(cmd.OutOrStdout(), "launched=%d %s\n", opts.n, s)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.format, "format", "text", "reply format: text, numbered or json")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")
	return cmd
}

func stress(client singleinstance.Client, n int, format sink.Format, deadline time.Duration) summary {
	var (
		wg sync.WaitGroup
		s  summary
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), deadline)
			defer cancel()
			delegated, _, err := client.TryRun(ctx, format)
			switch {
			case err != nil && strings.Contains(err.Error(), string(apperr.Busy)):
				atomic.AddInt32(&s.busy, 1)
			case err != nil:
				atomic.AddInt32(&s.failed, 1)
			case delegated:
				atomic.AddInt32(&s.ok, 1)
			default:
				atomic.AddInt32(&s.absent, 1)
			}
		}()
	}
	wg.Wait()
	s.elapsed = time.Since(start)
	return s
}
