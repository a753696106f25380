// SPDX-License-Identifier: MIT

package main

import (
	"net/http"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/ManuGH/audiocenter/internal/session"
	"github.com/spf13/cobra"
)

func newSessionCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the operator session tag applied to uploads",
	}
	cmd.AddCommand(
		newSessionCreateCmd(opts),
		newSessionCloseCmd(opts),
		newSessionListCmd(opts),
		newSessionHistoryCmd(opts),
	)
	return cmd
}

func newSessionCreateCmd(opts *options) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a session with the given tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp api.SessionResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/session", api.OpenSessionRequest{Tag: tag}, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printf(cmd.OutOrStdout(), "Session created: %s\n", resp.Tag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tag, "key", "k", "", "session tag")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newSessionCloseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]string
			if err := opts.client().do(cmd.Context(), http.MethodDelete, "/api/session", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printf(cmd.OutOrStdout(), "Session closed: %s\n", resp["closed"])
			return nil
		},
	}
}

func newSessionListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp api.SessionResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/session", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if !resp.Open {
				printf(cmd.OutOrStdout(), "No session\n")
				return nil
			}
			printf(cmd.OutOrStdout(), "Current session: %s\n", resp.Tag)
			return nil
		},
	}
}

func newSessionHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show sessions opened since the daemon started",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string][]session.Entry
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/session/history", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, resp)
			}
			for _, e := range resp["history"] {
				closed := "open"
				if e.ClosedAt != nil {
					closed = e.ClosedAt.Format("2006-01-02 15:04:05")
				}
				printf(out, "%s\t%s\t%s\n", e.Tag, e.OpenedAt.Format("2006-01-02 15:04:05"), closed)
			}
			return nil
		},
	}
}
