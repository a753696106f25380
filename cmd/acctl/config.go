// SPDX-License-Identifier: MIT

package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Daemon configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Re-read the daemon config file and apply hot-reloadable fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]string
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/config/reload", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printf(cmd.OutOrStdout(), "Config %s\n", resp["status"])
			return nil
		},
	})
	return cmd
}
