package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"mcpbridge/internal/app/discovery"
	"mcpbridge/internal/domain"
)

var stdout io.Writer = os.Stdout

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

type endpointJSON struct {
	Name          string                `json:"name"`
	URL           string                `json:"url"`
	Transport     domain.TransportKind  `json:"transport"`
	ServerName    string                `json:"serverName,omitempty"`
	ServerVersion string                `json:"serverVersion,omitempty"`
	Reachable     bool                  `json:"reachable"`
	ListHash      string                `json:"listHash,omitempty"`
	Stats         domain.ReconcileStats `json:"stats"`
	DurationMs    int64                 `json:"durationMs"`
	Error         string                `json:"error,omitempty"`
}

func printDiscoveryReport(report discovery.Report, jsonOutput bool) error {
	if jsonOutput {
		endpoints := make([]endpointJSON, 0, len(report.Endpoints))
		for _, endpoint := range report.Endpoints {
			item := endpointJSON{
				Name:          endpoint.Name,
				URL:           endpoint.Binding.URL,
				Transport:     endpoint.Binding.Transport,
				ServerName:    endpoint.ServerName,
				ServerVersion: endpoint.ServerVersion,
				Reachable:     endpoint.Reachable,
				ListHash:      endpoint.ListHash,
				Stats:         endpoint.Stats,
				DurationMs:    endpoint.Duration.Milliseconds(),
			}
			if endpoint.Err != nil {
				item.Error = endpoint.Err.Error()
			}
			endpoints = append(endpoints, item)
		}
		return writeJSON(map[string]any{
			"endpoints": endpoints,
			"totals":    report.Totals,
		})
	}
	for _, endpoint := range report.Endpoints {
		if endpoint.Err != nil {
			fmt.Fprintf(stdout, "%-16s %s FAILED %s\n", endpoint.Name, endpoint.Binding.URL, describeError(endpoint.Err))
			continue
		}
		fmt.Fprintf(stdout, "%-16s %s server=%s/%s %s (%s)\n",
			endpoint.Name, endpoint.Binding.URL, endpoint.ServerName, endpoint.ServerVersion,
			formatStats(endpoint.Stats), endpoint.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(stdout, "total %s\n", formatStats(report.Totals))
	return nil
}

func formatStats(stats domain.ReconcileStats) string {
	return fmt.Sprintf("added=%d updated=%d disabled=%d unchanged=%d failed=%d",
		stats.Added, stats.Updated, stats.Disabled, stats.Unchanged, stats.Failed)
}

func printTools(tools []domain.ToolDefinition, jsonOutput bool) error {
	if jsonOutput {
		if tools == nil {
			tools = []domain.ToolDefinition{}
		}
		return writeJSON(tools)
	}
	for _, tool := range tools {
		endpoint := tool.Binding.URL
		if endpoint == "" {
			endpoint = "-"
		}
		fmt.Fprintf(stdout, "%-32s %-8s %-8s %s\n", tool.Name, tool.Status, tool.Kind, endpoint)
	}
	return nil
}

func printDeleted(count int, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"deleted": count})
	}
	_, err := fmt.Fprintf(stdout, "deleted %d tool(s)\n", count)
	return err
}

func printPing(binding domain.Binding, alive bool, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{
			"url":       binding.URL,
			"transport": binding.Transport,
			"alive":     alive,
		})
	}
	_, err := fmt.Fprintln(stdout, alive)
	return err
}

func printCallResult(result domain.CallResult, jsonOutput bool) error {
	if jsonOutput {
		texts := result.Texts
		if texts == nil {
			texts = []string{}
		}
		return writeJSON(map[string]any{
			"kind":  result.Kind.String(),
			"texts": texts,
		})
	}
	fmt.Fprintln(stdout, result.String())
	return nil
}

func printConfigSummary(cfg domain.Config, jsonOutput bool) error {
	if jsonOutput {
		remotes := make([]map[string]any, 0, len(cfg.Remotes))
		for _, remote := range cfg.Remotes {
			remotes = append(remotes, map[string]any{
				"name":      remote.Name,
				"url":       remote.Binding.URL,
				"transport": remote.Binding.Transport,
				"headers":   remote.Binding.HeaderNames(),
			})
		}
		return writeJSON(map[string]any{
			"valid":     true,
			"discovery": cfg.Discovery.Enabled,
			"store":     cfg.Store.Path,
			"remotes":   remotes,
		})
	}
	fmt.Fprintf(stdout, "configuration ok: %d remote(s), store=%s, discovery=%t\n",
		len(cfg.Remotes), cfg.Store.Path, cfg.Discovery.Enabled)
	for _, remote := range cfg.Remotes {
		fmt.Fprintf(stdout, "  %-16s %s (%s)\n", remote.Name, remote.Binding.URL, remote.Binding.Transport)
	}
	return nil
}
