package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arzzra/rtc_sdk/pkg/sdk"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// Execute запускает корневую команду
func Execute() error {
	root := &cobra.Command{
		Use:          "rtc_agent",
		Short:        "RTC session agent",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "rtc.yaml", "path to YAML config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (text, json)")

	root.AddCommand(runCmd(), checkConfigCmd())
	return root.Execute()
}

// loadConfig читает конфигурацию и применяет флаги логирования
func loadConfig() (*sdk.Config, *slog.Logger, error) {
	cfg, err := sdk.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, nil, fmt.Errorf("logging flags: %w", err)
	}
	logger, err := sdk.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
