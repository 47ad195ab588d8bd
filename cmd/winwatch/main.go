package main

import (
	"context"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"winwatch/internal/app"
	"winwatch/internal/collector"
	"winwatch/internal/config"
	"winwatch/internal/logging"
)

var (
	configPath string
	daemonMode bool
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "winwatch",
		Short:        "Report the focused window to an ActivityWatch server",
		Long:         `winwatch polls the focused window and sends one heartbeat per poll to an ActivityWatch-compatible server, queueing them locally while the server is unreachable.`,
		SilenceUsage: true,
		RunE:         runWatcher,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file. Defaults to ./config.toml, ~/.config/winwatch/config.toml, /etc/winwatch/config.toml")
	rootCmd.PersistentFlags().Bool("testing", false, "Run against the testing server and bucket")
	addRunFlags(rootCmd.Flags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watcher (default)",
		RunE:  runWatcher,
	}
	addRunFlags(runCmd.Flags())

	rootCmd.AddCommand(runCmd, newCurrentCmd(), newPingCmd(), newStatusCmd())
	return rootCmd
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.Bool("exclude-title", false, "Replace window titles with \"excluded\"")
	fs.BoolP("verbose", "v", false, "Log at debug level")
	fs.Float64("poll-time", 1.0, "Seconds between polls")
	fs.String("log", "", "Path to log file (optional, defaults to stderr)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9465")
	fs.BoolVarP(&daemonMode, "daemon", "d", false, "Detach and run in the background")
}

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		cmd.PrintErrf("FATAL: Failed to load configuration: %v\n", err)
		return err
	}

	if daemonMode {
		// Fail in the foreground; the detached child's exit status is lost.
		if err := collector.CheckSession(runtime.GOOS, os.Getenv); err != nil {
			cmd.PrintErrf("FATAL: %v\n", err)
			return err
		}
		release, parent, err := daemonize(cfg)
		if err != nil {
			cmd.PrintErrf("FATAL: Failed to daemonize: %v\n", err)
			return err
		}
		if parent {
			return nil
		}
		defer release()
	}

	logger, closer, err := logging.New(logging.Options{
		File:    cfg.Log.File,
		Verbose: cfg.Verbose,
		Testing: cfg.Testing,
	})
	if err != nil {
		cmd.PrintErrf("FATAL: Failed to set up logging: %v\n", err)
		return err
	}
	defer closer.Close()

	application, err := app.NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to start watcher", "error", err)
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		logger.Error("Watcher exited with error", "error", err)
		return err
	}
	return nil
}
