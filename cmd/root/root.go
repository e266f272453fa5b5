// Package root contains the root command for the application
package root

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fjacquet/networth-sync/internal/config"
	"fjacquet/networth-sync/internal/container"
	"fjacquet/networth-sync/internal/store"
)

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// ConfigFile overrides the config.yaml lookup when set.
	ConfigFile string

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "networth-sync",
		Short: "Keep account balances in sync from bank notification emails and CSV exports.",
		Long: `networth-sync reads bank notification emails, turns them into balance
movements and reconciles them into a daily ledger per account. Balance
history can also be imported from CSV exports or entered by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to networth-sync!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnv()
			Log = config.ConfigureLogging()
			store.SetLogger(Log)
		},
	}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&ConfigFile, "config", "c", "", "Path to config.yaml (default: search $HOME/.networth, .networth, .)")
}

// LoadConfig reads the configuration named by --config, or the layered
// defaults when the flag is empty.
func LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if ConfigFile != "" {
		cfg, err = config.LoadFromFile(ConfigFile)
	} else {
		cfg, err = config.InitializeConfig()
	}
	if err != nil {
		return nil, err
	}
	Log = config.ConfigureLoggingFromConfig(cfg)
	store.SetLogger(Log)
	return cfg, nil
}

// NewContainer loads the configuration and wires the application.
// Callers must Close the container.
func NewContainer(ctx context.Context, opts ...container.Option) (*container.Container, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return container.NewContainer(ctx, cfg, opts...)
}
