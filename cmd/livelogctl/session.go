package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/splax/livelog/pkg/client"
)

func newSessionCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage viewing sessions",
	}
	cmd.AddCommand(
		newSessionCreateCommand(flags),
		newSessionListCommand(flags),
		newSessionShowCommand(flags),
		newSessionJoinCommand(flags),
		newSessionDeleteCommand(flags),
	)
	return cmd
}

func newSessionCreateCommand(flags *globalFlags) *cobra.Command {
	var protect, save bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a session, optionally password protected",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			input := client.CreateSessionInput{Name: strings.Join(args, " "), Save: save}
			if protect {
				if input.Password, err = promptPassword("Session password: "); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			created, err := cli.CreateSession(ctx, input)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %q created: %s\n", created.Name, created.Token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&protect, "password", false, "prompt for a password viewers must supply")
	cmd.Flags().BoolVar(&save, "save", false, "keep the session across server restarts")
	return cmd
}

func newSessionListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			sessions, err := cli.ListSessions(ctx)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), sessions)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOKEN\tNAME\tPROTECTED\tCREATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.Token, s.Name, s.Protected, s.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newSessionShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, _, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			found, err := cli.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), found)
		},
	}
}

func newSessionJoinCommand(flags *globalFlags) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "join <token>",
		Short: "Obtain a viewer token for a session and remember it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, cfg, err := newClient(flags)
			if err != nil {
				return err
			}
			token := args[0]
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if password == "" {
				found, err := cli.GetSession(ctx, token)
				if err != nil {
					return err
				}
				if found.Protected {
					if password, err = promptPassword("Session password: "); err != nil {
						return err
					}
				}
			}
			joined, err := cli.JoinSession(ctx, token, password)
			if isStatus(err, http.StatusUnauthorized) {
				return errors.New("incorrect session password")
			}
			if err != nil {
				return err
			}
			if cfg.Access == nil {
				cfg.Access = make(map[string]string)
			}
			cfg.Access[token] = joined.Access
			if err := saveConfig(cfg); err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), joined)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %q until %s\n", joined.Name, joined.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "session password (prompted when omitted)")
	return cmd
}

func newSessionDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, cfg, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := cli.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			if _, ok := cfg.Access[args[0]]; ok {
				delete(cfg.Access, args[0])
				if err := saveConfig(cfg); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session deleted")
			return nil
		},
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
