package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"relaydesk/relay/pkg/cli"
	"relaydesk/relay/pkg/config"
)

var (
	setRoute     routeFlags
	setAutostart bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration relay would run with: defaults, overlaid with
the config file, overlaid with RELAY_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return cli.NewConfigError(cfgFile, err)
		}

		data, err := config.Marshal(cfg)
		if err != nil {
			return cli.NewCommandError("config show", err)
		}

		format, err := cli.ParseOutputFormat(outputFlag)
		if err != nil {
			return err
		}
		if format == cli.FormatJSON {
			var doc map[string]any
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return cli.NewCommandError("config show", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}

		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return cli.NewConfigError(cfgFile, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s is valid\n", cfgFile)
		fmt.Fprintf(out, "  route: %s\n", cfg.Proxy.String())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the saved proxy route",
	Long: `Change the saved proxy route in the config file. The file is created
if it does not exist. Only the proxy section is touched, and environment
overrides are not written back.

A running relay with watch enabled picks the change up; otherwise use
"relay reconfigure" or restart it.`,
	Example: `  relay config set --target-host localhost --target-port 3000
  relay config set --proxy-port 9090 --autostart=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		autostartSet := cmd.Flags().Changed("autostart")
		if !setRoute.set() && !autostartSet {
			return cli.ConfigErrorf("flags", "nothing to set")
		}

		cfg, err := readConfigFile(cfgFile)
		if err != nil {
			return cli.NewConfigError(cfgFile, err)
		}

		cfg.Proxy.ProxyConfig = setRoute.apply(cfg.Proxy.ProxyConfig)
		if autostartSet {
			cfg.Proxy.Autostart = setAutostart
		}

		if err := config.Validate(cfg); err != nil {
			return cli.NewConfigError(cfgFile, err)
		}
		if err := config.Save(cfgFile, cfg); err != nil {
			return cli.NewCommandError("config set", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved route %s to %s\n", cfg.Proxy.String(), cfgFile)
		return nil
	},
}

func init() {
	setRoute.register(configSetCmd)
	configSetCmd.Flags().BoolVar(&setAutostart, "autostart", true, "start the proxy when relay runs")

	configCmd.AddCommand(configShowCmd, configValidateCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// readConfigFile parses path without environment overrides so they are not
// written back. A missing file yields the defaults.
func readConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	return config.Parse(data)
}
