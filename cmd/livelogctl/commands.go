package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/livelog/internal/stream"
	"github.com/splax/livelog/pkg/client"
)

const requestTimeout = 15 * time.Second

func newReportCommand(flags *globalFlags) *cobra.Command {
	var report client.Report
	cmd := &cobra.Command{
		Use:   "report <message>",
		Short: "Report an error",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			report.Message = strings.Join(args, " ")
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			ack, err := cli.Report(ctx, report)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), ack)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reported %s\n", ack.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&report.Type, "type", "", "error type (default error)")
	cmd.Flags().StringVar(&report.Source, "source", "", "source file")
	cmd.Flags().IntVar(&report.Line, "line", 0, "line number")
	cmd.Flags().IntVar(&report.Column, "column", 0, "column number")
	cmd.Flags().StringVar(&report.Stack, "stack", "", "stack trace")
	cmd.Flags().StringVar(&report.URL, "url", "", "page URL")
	cmd.Flags().StringVar(&report.SessionToken, "session", "", "session token to report under")
	return cmd
}

func newTailCommand(flags *globalFlags) *cobra.Command {
	var sessionToken, access string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow errors as they are reported",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, cfg, err := newClient(flags)
			if err != nil {
				return err
			}
			if access == "" && sessionToken != "" {
				access = cfg.Access[sessionToken]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			opts := client.StreamOptions{
				Session: sessionToken,
				Access:  access,
				OnDisconnect: func(err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "connection lost (%v), reconnecting\n", err)
				},
			}
			return cli.Stream(ctx, opts, func(msg stream.Message) error {
				if flags.json {
					data, err := stream.Encode(msg)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
					return nil
				}
				switch m := msg.(type) {
				case stream.ErrorMessage:
					printEvent(out, m.Error)
				case stream.ClientCountMessage:
					fmt.Fprintf(cmd.ErrOrStderr(), "-- %d viewer(s) connected\n", m.Count)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionToken, "session", "", "only follow errors reported under this session")
	cmd.Flags().StringVar(&access, "access", "", "viewer token for a protected session (default from 'session join')")
	return cmd
}

func newArchiveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Print every archived error",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			events, err := cli.Archive(ctx)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events, flags.json)
		},
	}
}

func newRecentCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the newest errors held by the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			events, err := cli.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events, flags.json)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of errors (server default 50)")
	return cmd
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			status, err := cli.Status(ctx)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), status)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "server\t%s\n", cli.BaseURL())
			fmt.Fprintf(tw, "storage\t%s\n", status.Storage)
			fmt.Fprintf(tw, "viewers\t%d\n", status.Clients)
			fmt.Fprintf(tw, "buffered\t%d\n", status.Buffered)
			fmt.Fprintf(tw, "recent\t%d\n", status.Recent)
			fmt.Fprintf(tw, "evicted\t%d\n", status.Evicted)
			fmt.Fprintf(tw, "reaped\t%d\n", status.Reaped)
			fmt.Fprintf(tw, "uptime\t%s\n", time.Duration(status.UptimeSeconds)*time.Second)
			return tw.Flush()
		},
	}
}

func printEvents(out io.Writer, events []client.ErrorEvent, asJSON bool) error {
	if asJSON {
		return printJSON(out, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "no errors")
		return nil
	}
	for _, event := range events {
		printEvent(out, event)
	}
	return nil
}

func printEvent(out io.Writer, event client.ErrorEvent) {
	location := event.Source
	if location != "" && event.Line > 0 {
		location = fmt.Sprintf("%s:%d", location, event.Line)
		if event.Column > 0 {
			location = fmt.Sprintf("%s:%d", location, event.Column)
		}
	}
	line := fmt.Sprintf("%s [%s] %s", event.Timestamp.Local().Format(time.TimeOnly), event.Type, event.Message)
	if location != "" {
		line += "  (" + location + ")"
	}
	fmt.Fprintln(out, line)
	if event.Stack != "" {
		for _, frame := range strings.Split(strings.TrimRight(event.Stack, "\n"), "\n") {
			fmt.Fprintf(out, "    %s\n", strings.TrimSpace(frame))
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isStatus(err error, status int) bool {
	var apiErr client.APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
