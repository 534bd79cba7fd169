package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wgbox/internal/config"
	"wgbox/internal/logging"
	"wgbox/internal/provision"
	"wgbox/internal/runtime"
)

var version = "dev"

type rootOptions struct {
	debug      bool
	logFormat  string
	configPath string
	envFile    string
	root       string
}

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		args := []any{"err", err}
		if hint := failureHint(err); hint != "" {
			args = append(args, "hint", hint)
		}
		slog.Error("command failed", args...)
		os.Exit(1)
	}
}

func failureHint(err error) string {
	if provision.IsPoolExhausted(err) {
		return "widen network.subnet_v4 or request fewer peers"
	}
	return ""
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "wgbox",
		Short:         "WireGuard VPN concentrator",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if opts.debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, opts.logFormat)
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", logging.FormatText, "Log format (text or json)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $WG_CONFIG or "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Environment file loaded before overrides")
	cmd.PersistentFlags().StringVar(&opts.root, "root", provision.DefaultRoot, "State root for keys, peers and configs")

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(generateCmd(opts))
	cmd.AddCommand(showPeerCmd(opts))
	cmd.AddCommand(statusCmd(opts))
	return cmd
}

// load reads the env file, the config file and env overrides, in that order.
func (o *rootOptions) load() (config.File, error) {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return config.File{}, err
	}
	path := o.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.File{}, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return config.File{}, err
	}
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}

func (o *rootOptions) service(cmd *cobra.Command) (*runtime.Service, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return runtime.New(cfg, o.root, cmd.OutOrStdout()), nil
}
