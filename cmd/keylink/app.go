package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/pkg/config"
)

// app wires configuration, preferences and the hub for one command invocation.
type app struct {
	cfg    *config.Config
	prefs  *config.FilePreferences
	hub    *hub.Hub
	logger *logrus.Logger
	out    io.Writer
}

// newApp loads the configuration and preferences and builds the hub.
// The caller must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath("config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if prefsPath != "" {
		cfg.PreferencesFile = prefsPath
	}

	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, err
	}

	prefs, err := config.OpenPreferences(cfg.PreferencesPath())
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"config":      path,
		"preferences": prefs.Path(),
	}).Debug("Configuration loaded")

	dialer := goble.NewHostDialer(logger)
	return &app{
		cfg:    cfg,
		prefs:  prefs,
		hub:    hub.New(prefs, dialer, cfg.HubOptions(), logger),
		logger: logger,
		out:    cmd.OutOrStdout(),
	}, nil
}

// Close drops the link and releases the host adapter.
func (a *app) Close() {
	if err := a.hub.Close(); err != nil {
		a.logger.WithError(err).Debug("Failed to stop host adapter")
	}
}

// address returns explicit when set, otherwise the selected output device.
func (a *app) address(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return a.prefs.OutputDevice()
}

// commandContext returns a context cancelled on Ctrl+C or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
