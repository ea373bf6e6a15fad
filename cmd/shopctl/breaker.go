package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shopping-assistant/internal/config"
	"shopping-assistant/internal/resilience"
)

const healthProbeTimeout = 10 * time.Second

func newBreakerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Probe the backend and show circuit breaker metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			asYAML, _ := cmd.Flags().GetBool("yaml")
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg, err := config.Load(config.CLI)
			if err != nil {
				return err
			}
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Backend.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), healthProbeTimeout)
			defer cancel()
			probeErr := a.Backend.Health(ctx)

			metrics := a.Breakers.Metrics()
			w := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(metrics)
			case asYAML:
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				return enc.Encode(metrics)
			}
			printMetrics(w, cfg.BackendBaseURL, probeErr, metrics)
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML")
	return cmd
}

func printMetrics(w io.Writer, backendURL string, probeErr error, metrics []resilience.BreakerMetrics) {
	status := "ok"
	if probeErr != nil {
		status = probeErr.Error()
	}
	fmt.Fprintf(w, "Backend %s: %s\n\n", backendURL, status)
	fmt.Fprintf(w, "%-10s %-10s %8s %8s %10s\n", "BREAKER", "STATE", "FAILURES", "CALLS", "REJECTED")
	for _, m := range metrics {
		fmt.Fprintf(w, "%-10s %-10s %8d %8d %10d\n", m.Name, m.State, m.Failures, m.Calls, m.Rejections)
	}
}
