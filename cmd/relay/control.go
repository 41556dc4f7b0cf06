package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relaydesk/relay/pkg/cli"
	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/control"
	"relaydesk/relay/pkg/proxy/types"
)

// routeFlags are the --target-host/--target-port/--proxy-port overrides
// shared by start, reconfigure and config set.
type routeFlags struct {
	targetHost string
	targetPort int
	proxyPort  int
}

func (f *routeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.targetHost, "target-host", "", "target host")
	cmd.Flags().IntVar(&f.targetPort, "target-port", 0, "target port")
	cmd.Flags().IntVar(&f.proxyPort, "proxy-port", 0, "proxy listen port")
}

func (f *routeFlags) set() bool {
	return f.targetHost != "" || f.targetPort != 0 || f.proxyPort != 0
}

// apply overlays the flags that were given onto base.
func (f *routeFlags) apply(base types.ProxyConfig) types.ProxyConfig {
	if f.targetHost != "" {
		base.TargetHost = f.targetHost
	}
	if f.targetPort != 0 {
		base.TargetPort = f.targetPort
	}
	if f.proxyPort != 0 {
		base.ProxyPort = f.proxyPort
	}
	return base
}

var (
	startRoute       routeFlags
	reconfigureRoute routeFlags
	eventsFlags      struct {
		limit     int
		operation string
		failed    bool
		since     time.Duration
	}
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the proxy is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newControlClient()
		st, err := client.Status(cmd.Context())
		if err != nil {
			return cli.NewCommandError("status", err)
		}
		return render(cmd, statusView(st))
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the proxy",
	Long: `Start the proxy on the saved route, or on the saved route with the
given overrides. A running proxy is restarted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newControlClient()

		var cfg *types.ProxyConfig
		if startRoute.set() {
			saved, err := client.Config(ctx)
			if err != nil {
				return cli.NewCommandError("start", err)
			}
			c := startRoute.apply(saved)
			cfg = &c
		}

		res, err := client.Start(ctx, cfg)
		if err != nil {
			return cli.NewCommandError("start", err)
		}
		return renderResult(cmd, "start", res)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newControlClient().Stop(cmd.Context())
		if err != nil {
			return cli.NewCommandError("stop", err)
		}
		return renderResult(cmd, "stop", res)
	},
}

var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure",
	Short: "Point a running proxy at a new route",
	Long: `Restart a running proxy with the current route and the given overrides.
The route is not saved; use "relay config set" for that. When the proxy is
stopped nothing is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !reconfigureRoute.set() {
			return cli.ConfigErrorf("flags", "at least one of --target-host, --target-port, --proxy-port is required")
		}

		ctx := cmd.Context()
		client := newControlClient()

		base, err := currentRoute(ctx, client)
		if err != nil {
			return cli.NewCommandError("reconfigure", err)
		}

		res, err := client.Reconfigure(ctx, reconfigureRoute.apply(base))
		if err != nil {
			return cli.NewCommandError("reconfigure", err)
		}
		return renderResult(cmd, "reconfigure", res)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent lifecycle events",
	Example: `  relay events --limit 20
  relay events --operation start --failed
  relay events --since 24h -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := control.EventsQuery{
			Limit:     eventsFlags.limit,
			Operation: types.Operation(eventsFlags.operation),
		}
		if eventsFlags.failed {
			f := false
			q.Success = &f
		}
		if eventsFlags.since > 0 {
			q.Since = time.Now().Add(-eventsFlags.since)
		}

		resp, err := newControlClient().Events(cmd.Context(), q)
		if err != nil {
			return cli.NewCommandError("events", err)
		}
		return render(cmd, eventsView(*resp))
	},
}

func init() {
	startRoute.register(startCmd)
	reconfigureRoute.register(reconfigureCmd)

	eventsCmd.Flags().IntVarP(&eventsFlags.limit, "limit", "n", 20, "maximum number of events")
	eventsCmd.Flags().StringVar(&eventsFlags.operation, "operation", "", "only this operation (start, stop, reconfigure)")
	eventsCmd.Flags().BoolVar(&eventsFlags.failed, "failed", false, "only failed operations")
	eventsCmd.Flags().DurationVar(&eventsFlags.since, "since", 0, "only events newer than this duration")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, reconfigureCmd, eventsCmd)
}

// newControlClient resolves the control address: --control, then the
// config file, then the default.
func newControlClient() *control.Client {
	addr := controlAddr
	if addr == "" {
		addr = config.DefaultControlListenAddress
		if cfg, err := config.LoadOrDefault(cfgFile); err == nil && cfg.Control.ListenAddress != "" {
			addr = cfg.Control.ListenAddress
		}
	}
	return control.NewClient(addr)
}

// currentRoute returns the running route, or the saved one when stopped.
func currentRoute(ctx context.Context, client *control.Client) (types.ProxyConfig, error) {
	st, err := client.Status(ctx)
	if err != nil {
		return types.ProxyConfig{}, err
	}
	if st.IsRunning && st.Config != nil {
		return *st.Config, nil
	}
	return client.Config(ctx)
}

func render(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}

// renderResult prints res and turns a failed operation into an error so
// the process exits non-zero.
func renderResult(cmd *cobra.Command, op string, res types.OperationResult) error {
	if err := render(cmd, resultView(res)); err != nil {
		return err
	}
	if !res.Success {
		return cli.NewOperationError(op, res.Error)
	}
	return nil
}

// The view types add text rendering; their JSON form is the wrapped type's.

type statusView types.Status

func (v statusView) Text() string {
	if !v.IsRunning || v.Config == nil {
		return "Proxy: stopped"
	}
	return fmt.Sprintf("Proxy: running\n  listening: :%d\n  target:    %s",
		v.Config.ProxyPort, v.Config.TargetURL())
}

type resultView types.OperationResult

func (v resultView) Text() string {
	if !v.Success {
		return "✗ " + v.Error
	}
	return "✓ " + v.Message
}

type eventsView control.EventsResponse

func (v eventsView) Text() string {
	if len(v.Events) == 0 {
		return "No events recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s  %-11s  %-6s  %s\n", "TIME", "OPERATION", "RESULT", "DETAIL")
	for _, e := range v.Events {
		result, detail := "ok", e.Message
		if !e.Success {
			result, detail = "failed", e.Error
		}
		if e.Config != nil {
			detail += " [" + e.Config.String() + "]"
		}
		fmt.Fprintf(&b, "%-24s  %-11s  %-6s  %s\n",
			e.Time.Local().Format(time.RFC3339), e.Operation, result, detail)
	}
	fmt.Fprintf(&b, "(%d of %d)", len(v.Events), v.Total)
	return b.String()
}
