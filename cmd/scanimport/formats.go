package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exploopio/scanimport/pkg/scanners"
)

var formatDescriptions = map[string]string{
	"nexpose_full":  "Rapid7 Nexpose XML export (full)",
	"nuclei_legacy": "Nuclei JSON lines output",
	"webfuzzer":     "WebFuzzer text report",
	"whatweb":       "WhatWeb JSON log",
	"zap":           "OWASP ZAP XML report",
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported report formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, f := range scanners.Formats() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-15s %s\n", f, formatDescriptions[string(f)])
			}
		},
	}
}
