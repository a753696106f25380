// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/ManuGH/audiocenter/internal/device"
	"github.com/spf13/cobra"
)

func newDevicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device"},
		Short:   "Inspect and configure connected devices",
	}
	cmd.AddCommand(newDevicesListCmd(opts), newDevicesStatusCmd(opts), newDevicesFunctionCmd(opts))
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func newDevicesListCmd(opts *options) *cobra.Command {
	var detail bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list api.DeviceList
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/devices", nil, &list); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, list)
			}
			if list.DeviceCount == 0 {
				printf(out, "No devices found\n")
				return nil
			}
			printf(out, "--------- Devices ----------\n")
			for _, d := range list.Devices {
				printf(out, "[R:%s, P:%s] %s %s\n", onOff(d.Capabilities.Capture), onOff(d.Capabilities.Playback), d.Key, d.Name)
				if detail {
					printDeviceDetail(cmd, d)
				}
			}
			printf(out, "----------------------------\n")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&detail, "detail", "l", false, "show addresses and announced metadata")
	return cmd
}

func printDeviceDetail(cmd *cobra.Command, d device.Record) {
	out := cmd.OutOrStdout()
	printf(out, "\tLocal Address:\t\t%s\n", d.LocalAddr)
	printf(out, "\tRemote Address:\t\t%s\n", d.RemoteAddr)
	printf(out, "\tConnected:\t\t%s\n", d.ConnectedAt.Format("2006-01-02 15:04:05"))
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printf(out, "\t%s:\t\t%v\n", k, d.Metadata[k])
	}
}

func newDevicesStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show device and upload counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st api.DeviceStatus
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/devices/status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, st)
			}
			printf(out, "devices: %d (capture on: %d, playback on: %d)\n", st.DeviceCount, st.CaptureEnabled, st.PlaybackEnabled)
			printf(out, "uploads active: %t\n", st.UploadsActive)
			return nil
		},
	}
}

func newDevicesFunctionCmd(opts *options) *cobra.Command {
	var key, capability, enable string
	cmd := &cobra.Command{
		Use:   "function",
		Short: "Enable/Disable device's functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := device.ParseCapability(capability); err != nil {
				return fmt.Errorf("invalid capability %q (capture|playback|all)", capability)
			}
			if _, err := device.ParseEnable(enable); err != nil {
				return fmt.Errorf("invalid enable action %q (on|off)", enable)
			}
			var rec device.Record
			path := "/api/devices/" + url.PathEscape(key) + "/capabilities"
			body := api.CapabilityRequest{Capability: capability, Enable: enable}
			if err := opts.client().do(cmd.Context(), http.MethodPut, path, body, &rec); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			printf(cmd.OutOrStdout(), "Device function: %s -> %s\n", capability, enable)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "device", "d", "", "device key")
	cmd.Flags().StringVarP(&capability, "capability", "c", "", "capture|playback|all")
	cmd.Flags().StringVarP(&enable, "enable", "e", "on", "on|off")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}
