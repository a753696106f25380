// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/ManuGH/audiocenter/internal/recording"
	"github.com/spf13/cobra"
)

func newRecordingCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recording",
		Short: "Start and stop scene recording runs across capture devices",
	}
	cmd.AddCommand(
		newRecordingStartCmd(opts),
		newRecordingStopCmd(opts),
		newRecordingStatusCmd(opts),
		newPlayRecordCmd(opts),
		newScheduleCmd(opts),
	)
	return cmd
}

func printRecording(w io.Writer, st api.RecordingStatusResponse) {
	if !st.Recording {
		printf(w, "recording: idle\n")
		if st.SceneID != "" {
			printf(w, "last scene: %s (run %s)\n", st.SceneID, st.RunID)
		}
		return
	}
	printf(w, "recording: scene %s (run %s)\n", st.SceneID, st.RunID)
	printf(w, "started: %s, duration %ds\n", st.StartedAt.Format(time.RFC3339), st.Duration)
	printf(w, "devices: %s\n", strings.Join(st.Devices, ", "))
}

func newRecordingStartCmd(opts *options) *cobra.Command {
	var req api.RecordingStartRequest
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run on every capture-enabled device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Timestamp = time.Now().UnixMilli()
			var st api.RecordingStatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/recording/start", req, &st); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printRecording(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.SceneID, "scene", "s", "", "scene identifier")
	cmd.Flags().IntVarP(&req.Duration, "duration", "t", 10, "seconds")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}

func newRecordingStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st api.RecordingStatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/recording/stop", nil, &st); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printRecording(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newRecordingStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st api.RecordingStatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/recording/status", nil, &st); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printRecording(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printSchedule(w io.Writer, p recording.Progress) {
	switch {
	case p.ID == "":
		printf(w, "schedule: none\n")
		return
	case p.Running:
		printf(w, "schedule: running %s (session %s, speaker %s)\n", p.ID, p.Session, p.Speaker)
	default:
		printf(w, "schedule: finished %s (session %s)\n", p.ID, p.Session)
	}
	printf(w, "progress: %d/%d\n", p.Done, p.Total)
	if p.Current != "" {
		printf(w, "current: %s\n", p.Current)
	}
	if p.Error != "" {
		printf(w, "error: %s\n", p.Error)
	}
}

func newPlayRecordCmd(opts *options) *cobra.Command {
	var plan api.PlayRecordRequest
	cmd := &cobra.Command{
		Use:   "play-record",
		Short: "Play inputs on a speaker while every capture device records them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p recording.Progress
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/recording/play-record", plan, &p); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printSchedule(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&plan.Session, "session", "s", "", "session tag the recordings are filed under")
	cmd.Flags().StringVarP(&plan.Speaker, "speaker", "k", "", "device key that plays the inputs")
	cmd.Flags().StringSliceVarP(&plan.Inputs, "input", "i", nil, "file name on the speaker, repeatable")
	cmd.Flags().IntVarP(&plan.Duration, "duration", "t", 10, "capture seconds per input")
	cmd.Flags().StringVarP(&plan.Mode, "mode", "m", recording.DefaultCaptureMode, "capture mode: simple or pro")
	cmd.Flags().BoolVarP(&plan.Process, "process", "p", false, "process recordings on device")
	cmd.Flags().BoolVarP(&plan.Ultra, "ultrasonic", "u", false, "ultrasonic capture")
	cmd.Flags().IntVarP(&plan.Delay, "delay", "d", 0, "seconds to wait before the first input")
	for _, name := range []string{"session", "speaker", "input"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newScheduleCmd(opts *options) *cobra.Command {
	var cancel bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or cancel the play-record schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			method := http.MethodGet
			if cancel {
				method = http.MethodDelete
			}
			var p recording.Progress
			if err := opts.client().do(cmd.Context(), method, "/api/recording/play-record", nil, &p); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printSchedule(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cancel, "cancel", false, "cancel the running schedule")
	return cmd
}
