package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mcpbridge/internal/app"
	"mcpbridge/internal/domain"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Discover remote tools, then follow list-change notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return app.New(opts.logger).Serve(ctx, opts.serveConfig())
		},
	}
}

func newDiscoverCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass over the configured remotes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			report, err := app.New(opts.logger).Discover(ctx, opts.serveConfig())
			if err != nil {
				return err
			}
			if err := printDiscoveryReport(report, opts.jsonOutput); err != nil {
				return err
			}
			if len(report.Failed()) == len(report.Endpoints) && len(report.Endpoints) > 0 {
				return exitSilent(exitUnreachable)
			}
			return nil
		},
	}
}

type toolsOptions struct {
	status string
	kind   string
	search string
}

func newToolsCmd(opts *cliOptions) *cobra.Command {
	var toolOpts toolsOptions
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registry entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.ToolFilter{
				Status:     domain.ToolStatus(strings.ToUpper(strings.TrimSpace(toolOpts.status))),
				Kind:       domain.ToolKind(strings.ToUpper(strings.TrimSpace(toolOpts.kind))),
				NameSubstr: toolOpts.search,
			}
			if err := validateFilter(filter); err != nil {
				return err
			}
			tools, err := app.New(opts.logger).Tools(cmd.Context(), opts.serveConfig(), filter)
			if err != nil {
				return err
			}
			return printTools(tools, opts.jsonOutput)
		},
	}
	cmd.Flags().StringVar(&toolOpts.status, "status", "", "filter by status (enabled, disabled)")
	cmd.Flags().StringVar(&toolOpts.kind, "kind", "", "filter by kind (local, remote)")
	cmd.Flags().StringVar(&toolOpts.search, "search", "", "case-insensitive name substring")
	cmd.AddCommand(
		newToolStatusCmd(opts, "enable", domain.ToolStatusEnabled),
		newToolStatusCmd(opts, "disable", domain.ToolStatusDisabled),
		newToolDeleteCmd(opts),
	)
	return cmd
}

func newToolStatusCmd(opts *cliOptions, use string, status domain.ToolStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME...",
		Short: "Set registry entries to " + strings.ToLower(string(status)),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := app.New(opts.logger).SetToolStatus(cmd.Context(), opts.serveConfig(), args, status)
			if err != nil {
				return err
			}
			return printTools(tools, opts.jsonOutput)
		},
	}
}

func newToolDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Remove registry entries; synchronization never does this",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := app.New(opts.logger).DeleteTools(cmd.Context(), opts.serveConfig(), args)
			if err != nil {
				return err
			}
			return printDeleted(count, opts.jsonOutput)
		},
	}
}

type endpointOptions struct {
	url       string
	transport string
	headers   []string
}

func (o endpointOptions) binding() (domain.Binding, error) {
	binding := domain.Binding{
		URL:       strings.TrimSpace(o.url),
		Transport: domain.NormalizeTransportKind(o.transport),
	}
	for _, raw := range o.headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return domain.Binding{}, domain.E(domain.CodeInvalidArgument, "header", fmt.Sprintf("expected \"Name: value\", got %q", raw), nil)
		}
		if binding.Headers == nil {
			binding.Headers = make(map[string]string)
		}
		binding.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return binding.Normalized(), nil
}

func bindEndpointFlags(cmd *cobra.Command, opts *endpointOptions) {
	cmd.Flags().StringVar(&opts.url, "url", "", "remote endpoint base URL")
	cmd.Flags().StringVar(&opts.transport, "transport", string(domain.TransportStreamingHTTP), "transport (streaming-http, event-stream)")
	cmd.Flags().StringArrayVar(&opts.headers, "header", nil, "extra request header \"Name: value\" (repeatable)")
}

func newPingCmd(opts *cliOptions) *cobra.Command {
	var endpoint endpointOptions
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a remote endpoint answers ping",
		RunE: func(cmd *cobra.Command, _ []string) error {
			binding, err := endpoint.binding()
			if err != nil {
				return err
			}
			alive, err := app.New(opts.logger).Ping(cmd.Context(), opts.serveConfig(), binding)
			if err != nil {
				return err
			}
			if err := printPing(binding, alive, opts.jsonOutput); err != nil {
				return err
			}
			if !alive {
				return exitSilent(exitUnreachable)
			}
			return nil
		},
	}
	bindEndpointFlags(cmd, &endpoint)
	return cmd
}

func newInvokeCmd(opts *cliOptions) *cobra.Command {
	var endpoint endpointOptions
	var tool, rawArgs string
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Call a registry tool, or a remote tool directly with --url",
		RunE: func(cmd *cobra.Command, _ []string) error {
			binding, err := endpoint.binding()
			if err != nil {
				return err
			}
			args, err := parseArguments(rawArgs)
			if err != nil {
				return err
			}
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			result, err := app.New(opts.logger).Invoke(ctx, opts.serveConfig(), app.InvokeRequest{
				Tool:      tool,
				Binding:   binding,
				Arguments: args,
			})
			if err != nil {
				return err
			}
			return printCallResult(result, opts.jsonOutput)
		},
	}
	bindEndpointFlags(cmd, &endpoint)
	cmd.Flags().StringVar(&tool, "tool", "", "tool name")
	cmd.Flags().StringVar(&rawArgs, "args", "", "tool arguments as a JSON object")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without contacting any endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.New(opts.logger).ValidateConfig(cmd.Context(), app.ValidateConfig{ConfigPath: opts.configPath})
			if err != nil {
				return err
			}
			return printConfigSummary(cfg, opts.jsonOutput)
		},
	}
}

func validateFilter(filter domain.ToolFilter) error {
	switch filter.Status {
	case "", domain.ToolStatusEnabled, domain.ToolStatusDisabled:
	default:
		return domain.E(domain.CodeInvalidArgument, "tools", fmt.Sprintf("unknown status %q", filter.Status), nil)
	}
	switch filter.Kind {
	case "", domain.ToolKindLocal, domain.ToolKindRemote:
	default:
		return domain.E(domain.CodeInvalidArgument, "tools", fmt.Sprintf("unknown kind %q", filter.Kind), nil)
	}
	return nil
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "args", "arguments must be a JSON object", err)
	}
	return args, nil
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
