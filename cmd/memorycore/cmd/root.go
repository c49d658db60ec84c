package cmd

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/carebridge/memorycore/config"
	"github.com/carebridge/memorycore/internal/mylog"
	"github.com/carebridge/memorycore/memory"
)

// New builds the memorycore maintenance CLI. The network surface of the
// platform lives elsewhere; this binary only opens the stores directly.
func New() *cobra.Command {
	params := &struct {
		ConfigFile string
	}{}

	cmd := &cobra.Command{
		Use:          "memorycore",
		Short:        "Maintenance tooling for the memory engine",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&params.ConfigFile, "config", "c", "", "YAML config file overriding the defaults")

	cmd.AddCommand(
		newMigrateCmd(&params.ConfigFile),
		newQueryCmd(&params.ConfigFile),
		newStoreCmd(&params.ConfigFile),
	)
	return cmd
}

// openService resolves config (defaults <- YAML file <- environment) and
// wires a coordinator over the sqlite stores.
func openService(configFile string) (memory.Service, *config.MemoryConfig, error) {
	conf := config.NewMemoryConfig()
	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
		if err := yaml.Unmarshal(raw, conf); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse config file %s", configFile)
		}
	}
	if err := config.ResolveConfig(conf); err != nil {
		return nil, nil, err
	}

	logConf := config.NewLogConfig()
	if err := config.ResolveConfig(logConf); err != nil {
		return nil, nil, err
	}
	logger := mylog.NewLogger(logConf.LogLevel, logConf.LogHandler)

	service, err := memory.NewService(conf, logger)
	if err != nil {
		return nil, nil, err
	}
	return service, conf, nil
}
