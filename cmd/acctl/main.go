// SPDX-License-Identifier: MIT

// Command acctl is the operator console for the audiocenter daemon. Every
// subcommand is one REST call.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8088"

type options struct {
	server  string
	timeout time.Duration
	json    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "acctl",
		Short:         "audiocenter operator console",
		Long:          "Control connected audio devices, uploads, sessions and recording runs through the daemon REST API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("AC_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "daemon base URL (env AC_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newDevicesCmd(opts),
		newAudioCmd(opts),
		newSessionCmd(opts),
		newRecordingCmd(opts),
		newTimeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *options) client() *client { return newClient(o.server, o.timeout) }

// printJSON writes v indented; used by --json and for unstructured answers.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05.000")
}

func printf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}
