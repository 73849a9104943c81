package main

import (
	"fmt"
	"sort"
	"strings"

	otelexport "github.com/peerbonus/peerbonus-go/metrics/export/otel"
	promexport "github.com/peerbonus/peerbonus-go/metrics/export/prometheus"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func (c *cli) metricsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print this process's session metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch strings.ToLower(format) {
			case "prometheus", "prom":
				fmt.Fprint(c.out, promexport.NewExporter(c.manager).Render())
				return nil
			case "otel":
				return c.printOTel(cmd)
			default:
				return fmt.Errorf("unknown metrics format %q (want prometheus or otel)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "prometheus", "output format: prometheus or otel")
	return cmd
}

func (c *cli) printOTel(cmd *cobra.Command) error {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(cmd.Context()) }()

	exporter, err := otelexport.NewExporter(provider.Meter("peerbonus-cli"), c.manager)
	if err != nil {
		return err
	}
	defer exporter.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(cmd.Context(), &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s %d", m.Name, dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					name := m.Name
					if le, ok := dp.Attributes.Value("le"); ok {
						name += "{le=" + le.AsString() + "}"
					}
					lines = append(lines, fmt.Sprintf("%s %d", name, dp.Value))
				}
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		c.println(l)
	}
	return nil
}
