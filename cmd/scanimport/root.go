package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/options"
)

const appName = "scanimport"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Import security scanner reports into an asset inventory",
		Long: `scanimport decodes reports from Nexpose, Nuclei, WebFuzzer, WhatWeb and
OWASP ZAP, normalizes their severities, references and rich text, and
records the hosts, services and findings they describe in an inventory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newIngestCmd(g),
		newServeCmd(g),
		newFormatsCmd(),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and builds the logger for cmd.
func (g *globalFlags) load(cmd *cobra.Command, extra ...options.Option) (*options.Config, core.Logger, error) {
	var opts []options.Option
	if g.logLevel != "" {
		opts = append(opts, options.WithLogLevel(g.logLevel))
	}
	opts = append(opts, extra...)

	cfg, err := options.Load(g.configPath, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := core.NewDefaultLogger(appName, core.ParseLogLevel(cfg.Log.Level))
	logger.SetOutput(cmd.ErrOrStderr())
	return cfg, logger, nil
}
