package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"winwatch/internal/collector"
	"winwatch/internal/config"
	"winwatch/internal/event"
	"winwatch/internal/ipc"
)

const socketTimeout = 2 * time.Second

func newCurrentCmd() *cobra.Command {
	var excludeTitle bool
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the focused window once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := collector.CheckSession(runtime.GOOS, os.Getenv); err != nil {
				return err
			}
			probe, err := collector.NewProbe()
			if err != nil {
				return err
			}
			defer probe.Close()

			obs, err := probe.Sample()
			if err != nil {
				return fmt.Errorf("failed to get active window: %w", err)
			}
			if obs == nil {
				cmd.Println("No active window")
				return nil
			}
			cmd.Printf("App:    %s\n", obs.AppName)
			cmd.Printf("Title:  %s\n", obs.Title)
			cmd.Printf("Labels: %s\n", strings.Join(event.Labels(*obs, excludeTitle), ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&excludeTitle, "exclude-title", false, "Show the redacted labels")
	return cmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if a watcher is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendCommand(cmd, ipc.Command{Name: ipc.CmdPing})
			if err != nil {
				return err
			}
			cmd.Println("Success:", resp.Message)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running watcher's status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendCommand(cmd, ipc.Command{Name: ipc.CmdGetStatus})
			if err != nil {
				return err
			}
			var status ipc.StatusData
			if err := ipc.DecodeData(resp, &status); err != nil {
				return err
			}
			pretty, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(pretty))
			return nil
		},
	}
}

// sendCommand resolves the socket from the usual config sources and returns
// the reply. A reply with Success false becomes an error.
func sendCommand(cmd *cobra.Command, c ipc.Command) (*ipc.Response, error) {
	cfg, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	resp, err := ipc.Send(cfg.SocketPath, c, socketTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w\nIs the watcher running?", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Message)
	}
	return resp, nil
}
