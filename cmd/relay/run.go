package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"relaydesk/relay/pkg/cli"
	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/telemetry/logging"
)

var runFlags struct {
	targetHost  string
	targetPort  int
	proxyPort   int
	noAutostart bool
	logLevel    string
	dryRun      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay process",
	Long: `Start the relay process with the specified configuration.

The process serves the control API, records lifecycle history and, unless
autostart is disabled, starts the proxy on the saved route. It runs until
interrupted with SIGINT or SIGTERM.

A missing config file is not an error: the defaults are used and the file
is created the first time the route is saved.

Examples:
  # Start with relay.yaml in the working directory
  relay run

  # Start with a custom config
  relay run --config /etc/relay/relay.yaml

  # Override the route for this run only
  relay run --target-host localhost --target-port 3000 --proxy-port 8080

  # Validate config without starting
  relay run --dry-run`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.targetHost, "target-host", "", "override the target host")
	runCmd.Flags().IntVar(&runFlags.targetPort, "target-port", 0, "override the target port")
	runCmd.Flags().IntVar(&runFlags.proxyPort, "proxy-port", 0, "override the proxy listen port")
	runCmd.Flags().BoolVar(&runFlags.noAutostart, "no-autostart", false, "do not start the proxy until asked through the control API")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err)
	}
	slog.SetDefault(logger.Logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		fmt.Fprintf(out, "  route: %s\n", cfg.Proxy.String())
		return nil
	}

	fmt.Fprintf(out, "Relay v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)

	a, err := newApp(cfgFile, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	autostart := cfg.Proxy.Autostart && !runFlags.noAutostart
	if err := a.start(ctx, autostart); err != nil {
		a.close(context.Background())
		return cli.NewCommandError("run", err)
	}

	if a.control != nil {
		fmt.Fprintf(out, "✓ Control API: http://%s\n", a.control.Addr())
	}
	if st := a.manager.Status(); st.IsRunning {
		fmt.Fprintf(out, "✓ Proxy listening on :%d -> %s\n", st.Config.ProxyPort, st.Config.TargetURL())
	} else {
		fmt.Fprintln(out, "  Proxy not running")
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	<-ctx.Done()
	fmt.Fprintln(out, "\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+config.DefaultShutdownTimeout)
	defer cancel()

	if err := a.close(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Relay stopped")
	return nil
}

// loadRunConfig loads the config file (or defaults), applies environment
// overrides and then flag overrides, and validates the result.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}

	if runFlags.targetHost != "" {
		cfg.Proxy.TargetHost = runFlags.targetHost
	}
	if runFlags.targetPort != 0 {
		cfg.Proxy.TargetPort = runFlags.targetPort
	}
	if runFlags.proxyPort != 0 {
		cfg.Proxy.ProxyPort = runFlags.proxyPort
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}
