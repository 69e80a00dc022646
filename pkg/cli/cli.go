package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmdmdm-nz/intfreactor/pkg/version"
)

// DefaultConfigPath is where the options file is read from unless --config
// says otherwise.
const DefaultConfigPath = "/etc/intfreactor/options.yaml"

// Config holds the application configuration from CLI flags
type Config struct {
	ConfigPath string
	Port       int
	Host       string
	LogLevel   string
	Syslog     bool
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("Config: %s, Host: %s, Port: %d, LogLevel: %s, Syslog: %t", c.ConfigPath, c.Host, c.Port, c.LogLevel, c.Syslog)
}

// NewRootCommand builds the intfreactor command. run is called with the
// parsed flags when the agent itself is started.
func NewRootCommand(run func(ctx context.Context, cfg *Config) error) *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "intfreactor",
		Short:         "Runs a script when a monitored interface changes operational state",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	flags := cmd.Flags()
	flags.StringVarP(&cfg.ConfigPath, "config", "c", DefaultConfigPath, "Path to the agent options file")
	flags.StringVar(&cfg.Host, "host", "127.0.0.1", "Host the status API binds to")
	flags.IntVar(&cfg.Port, "port", 0, "Port the status API listens on (0 disables the API)")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&cfg.Syslog, "syslog", false, "Also send logs to the local syslog daemon")

	cmd.AddCommand(newStatusCommand())
	return cmd
}
