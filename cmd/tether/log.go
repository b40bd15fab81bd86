package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tether-io/tether-go/internal/logtool"
)

func newLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol trace files",
		Long: `Inspect protocol trace files written with --protocol-log.

Filters select events by connection, peer, endpoint, layer (transport,
manager), direction (in, out), category (data, control, state, error),
role (client, server) and RFC3339 time range.`,
	}
	cmd.AddCommand(newLogViewCommand(), newLogExportCommand(), newLogFilterCommand(), newLogStatsCommand())
	return cmd
}

func addSelectorFlags(f *pflag.FlagSet, s *logtool.Selector) {
	f.StringVar(&s.ConnID, "conn-id", "", "connection ID")
	f.StringVar(&s.PeerID, "peer-id", "", "server peer ID")
	f.StringVar(&s.Endpoint, "endpoint", "", "dialed endpoint or listen address")
	f.StringVar(&s.Layer, "layer", "", "layer (transport, manager)")
	f.StringVar(&s.Direction, "direction", "", "direction (in, out)")
	f.StringVar(&s.Category, "category", "", "category (data, control, state, error)")
	f.StringVar(&s.Role, "role", "", "local role (client, server)")
	f.StringVar(&s.TimeStart, "time-start", "", "first timestamp, inclusive (RFC3339)")
	f.StringVar(&s.TimeEnd, "time-end", "", "last timestamp, exclusive (RFC3339)")
}

func newLogViewCommand() *cobra.Command {
	var sel logtool.Selector
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := sel.Filter()
			if err != nil {
				return err
			}
			return logtool.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addSelectorFlags(cmd.Flags(), &sel)
	return cmd
}

func newLogExportCommand() *cobra.Command {
	var (
		sel    logtool.Selector
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export events as JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := sel.Filter()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return logtool.RunExport(args[0], format, filter, w)
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", logtool.FormatJSONL, "output format (jsonl, csv)")
	f.StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	addSelectorFlags(f, &sel)
	return cmd
}

func newLogFilterCommand() *cobra.Command {
	var (
		sel    logtool.Selector
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Copy matching events into a new trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := sel.Filter()
			if err != nil {
				return err
			}
			count, err := logtool.RunFilter(args[0], output, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", count, output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "output trace file")
	addSelectorFlags(f, &sel)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newLogStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logtool.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
