// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"time"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/spf13/cobra"
)

func newTimeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Query the daemon clock",
	}
	cmd.AddCommand(newTimeCurrentCmd(opts), newTimeSyncCmd(opts))
	return cmd
}

func newTimeCurrentCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the server time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]int64
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/time/current", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printf(cmd.OutOrStdout(), "Server time: %s\n", formatMillis(resp["timestamp"]))
			return nil
		},
	}
}

func newTimeSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Estimate the offset between this host and the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UnixMilli()
			var resp api.TimeSyncResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/time/sync", api.TimeSyncRequest{ClientTimestamp: &now}, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, resp)
			}
			printf(out, "Server time: %s\n", formatMillis(resp.ServerTimestamp))
			if resp.OffsetMillis != nil {
				printf(out, "Offset: %dms\n", *resp.OffsetMillis)
			}
			return nil
		},
	}
}
