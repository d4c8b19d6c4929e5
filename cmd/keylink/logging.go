package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/keylink/pkg/config"
)

// logLevels are the levels accepted by --log-level.
var logLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// configureLogger builds the command logger from the config file's log_level,
// overridden by --log-level or, failing that, by the verbose flag.
// Log lines go to the command's stderr so they never mix with command output.
func configureLogger(cmd *cobra.Command, verboseFlagName string, cfg *config.Config) (*logrus.Logger, error) {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		level, ok := logLevels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		logger.SetLevel(level)
		return logger, nil
	}

	if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, nil
}
