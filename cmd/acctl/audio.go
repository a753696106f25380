// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/ManuGH/audiocenter/internal/dispatch"
	"github.com/spf13/cobra"
)

func newAudioCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Send capture, playback and file commands to devices",
	}
	cmd.AddCommand(
		newCaptureCmd(opts),
		newPlaybackCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
		newUploadCmd(opts),
	)
	return cmd
}

// sendCommand posts body to a device command route and prints the per-device
// outcome.
func sendCommand(cmd *cobra.Command, opts *options, key, action string, body any) error {
	var resp api.CommandResponse
	path := "/api/devices/" + url.PathEscape(key) + "/" + action
	err := opts.client().do(cmd.Context(), http.MethodPost, path, body, &resp)

	var apiErr *apiError
	if err != nil && !(errors.As(err, &apiErr) && resp.Results != nil) {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.json {
		if perr := printJSON(out, resp); perr != nil {
			return perr
		}
		return err
	}

	keys := make([]string, 0, len(resp.Results))
	for k := range resp.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := resp.Results[k]
		if r.OK {
			printf(out, "%s: %s sent\n", k, action)
			continue
		}
		printf(out, "%s: %s failed: %s\n", k, action, r.Error)
	}
	return err
}

func newCaptureCmd(opts *options) *cobra.Command {
	var key string
	var c dispatch.CaptureCommand
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Start or control capture on a device or ALL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.Validate(); err != nil {
				return err
			}
			return sendCommand(cmd, opts, key, "capture", c)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&key, "device", "d", dispatch.TargetAll, "device key or ALL")
	f.StringVarP(&c.Action, "action", "a", "start", "start|stop|pause|resume")
	f.StringVarP(&c.Output, "output", "o", "output.wav", "output file name on the device")
	f.IntVarP(&c.Duration, "duration", "t", dispatch.UnboundedDuration, "seconds, -1 for unbounded")
	f.StringVarP(&c.Mode, "mode", "m", "pro", "simple|pro")
	f.BoolVarP(&c.Process, "process", "p", false, "post-process on the device")
	f.BoolVarP(&c.Forward, "forward", "f", false, "upload the recording when done")
	f.BoolVarP(&c.Delete, "delete", "x", false, "delete from the device after upload")
	f.BoolVarP(&c.Ultra, "ultrasonic", "u", false, "record the ultrasonic band")
	return cmd
}

func newPlaybackCmd(opts *options) *cobra.Command {
	var key string
	var p dispatch.PlaybackCommand
	cmd := &cobra.Command{
		Use:   "playback",
		Short: "Play an audio file on a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := p.Validate(); err != nil {
				return err
			}
			return sendCommand(cmd, opts, key, "playback", p)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&key, "device", "d", "", "device key or ALL")
	f.StringVarP(&p.Input, "input", "i", "", "file name on the device")
	f.StringVarP(&p.Action, "action", "a", "start", "start|stop|pause|resume")
	f.StringVarP(&p.Mode, "mode", "m", "music", "music|voice")
	f.BoolVarP(&p.Loop, "loop", "l", false, "repeat until stopped")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	var key, path string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an audio file on a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendCommand(cmd, opts, key, "delete", api.DeleteRequest{FilePath: path})
		},
	}
	cmd.Flags().StringVarP(&key, "device", "d", "", "device key or ALL")
	cmd.Flags().StringVarP(&path, "path", "p", "", "file path on the device")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Ask a device for its audio files (answers arrive on the event stream)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendCommand(cmd, opts, key, "list", nil)
		},
	}
	cmd.Flags().StringVarP(&key, "device", "d", "", "device key or ALL")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func newUploadCmd(opts *options) *cobra.Command {
	var key, path string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Push a file from the daemon host to a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The daemon reads the file, so relative paths resolve here first.
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			return sendCommand(cmd, opts, key, "push", api.PushRequest{Path: abs})
		},
	}
	cmd.Flags().StringVarP(&key, "device", "d", "", "device key or ALL")
	cmd.Flags().StringVarP(&path, "path", "p", "", "local file path on the daemon host")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
