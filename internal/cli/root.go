// Package cli implements the hangview command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/hangview/internal/config"
	"github.com/tOgg1/hangview/internal/logging"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile   string
	logLevel     string
	logFormat    string
	protocolsDir string
	dataDir      string
	jsonOutput   bool
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hangview",
		Short:         "Viewport grid and hanging protocol engine",
		Long:          "hangview arranges imaging content into a pane grid and applies hanging protocols to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.config/hangview/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "override logging format (json, console)")
	flags.StringVar(&opts.protocolsDir, "protocols-dir", "", "directory of protocol definitions")
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory for the database")
	flags.BoolVar(&opts.jsonOutput, "json", false, "write JSON instead of tables")

	cmd.AddCommand(
		newRunCmd(opts),
		newScriptCmd(opts),
		newProtocolsCmd(opts),
		newHistoryCmd(opts),
		newForgetCmd(opts),
	)
	return cmd
}

// loadConfig applies defaults < file < env < flags and initializes logging.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if o.configFile != "" {
		loader.SetConfigFile(o.configFile)
	}
	for key, value := range map[string]string{
		"logging.level":   o.logLevel,
		"logging.format":  o.logFormat,
		"protocols.dir":   o.protocolsDir,
		"global.data_dir": o.dataDir,
	} {
		if value != "" {
			loader.Set(key, value)
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	initLogging(cfg)
	logger := logging.Component("cli")
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	defaults := logging.DefaultConfig()
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
		MaxSizeMB:    defaults.MaxSizeMB,
		MaxBackups:   defaults.MaxBackups,
	})
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
