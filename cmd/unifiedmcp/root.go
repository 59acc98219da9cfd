package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"UnifiedMCP-Client/internal/config"
	"UnifiedMCP-Client/pkg/logger"
	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

// app 保存一次命令执行期间共享的状态。
type app struct {
	configPath string
	url        string
	apiKey     string
	noRealtime bool
	timeout    time.Duration

	out      io.Writer
	cfg      *config.Config
	client   *unifiedmcp.Client
	registry *prometheus.Registry
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "unifiedmcp",
		Short: "Command line client for the Unified MCP Server",
		Long: `unifiedmcp manages agents, tasks and tools on a Unified MCP Server.

Calls use the realtime channel when it is available and fall back to the
REST API otherwise. Results are printed as indented JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&a.url, "url", "", "server base URL (overrides config and "+config.EnvURL+")")
	flags.StringVar(&a.apiKey, "api-key", "", "API key sent as bearer token and realtime connect token")
	flags.BoolVar(&a.noRealtime, "no-realtime", false, "use the REST API only")
	flags.DurationVar(&a.timeout, "timeout", 0, "per-call timeout (default from config, 30s)")

	root.AddCommand(
		newHealthCommand(a),
		newAgentsCommand(a),
		newTasksCommand(a),
		newToolsCommand(a),
		newWatchCommand(a),
		newEventsCommand(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.Server.BaseURL = strings.TrimSpace(a.url)
	}
	if a.apiKey != "" {
		cfg.Server.APIKey = a.apiKey
	}
	if a.noRealtime {
		disabled := false
		cfg.Server.Realtime = &disabled
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) teardown() error {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logger.L().Warn("close client", slog.Any("error", err))
		}
		a.client = nil
	}
	return logger.Sync()
}

// connect 按需创建客户端；同一次执行内复用。
func (a *app) connect(ctx context.Context) (*unifiedmcp.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	server := a.cfg.Server
	timeout := server.Timeout()
	if a.timeout > 0 {
		timeout = a.timeout
	}
	opts := []unifiedmcp.Option{
		unifiedmcp.WithAPIKey(server.APIKey),
		unifiedmcp.WithTimeout(timeout),
		unifiedmcp.WithRealtime(server.RealtimeEnabled()),
		unifiedmcp.WithLogger(logger.Named("unifiedmcp")),
	}
	if server.RealtimeURL != "" {
		opts = append(opts, unifiedmcp.WithRealtimeURL(server.RealtimeURL))
	}
	if a.registry != nil {
		opts = append(opts, unifiedmcp.WithMetrics(a.registry))
	}
	client, err := unifiedmcp.NewClient(ctx, server.BaseURL, opts...)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// call 创建客户端、执行 fn 并输出结果。
func (a *app) call(cmd *cobra.Command, fn func(ctx context.Context, c *unifiedmcp.Client) (any, error)) error {
	ctx := cmd.Context()
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	result, err := fn(ctx, client)
	if err != nil {
		return err
	}
	return a.print(result)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseObject 解析命令行传入的 JSON 对象参数。
func parseObject(raw string) (unifiedmcp.Object, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var obj unifiedmcp.Object
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("参数不是合法的 JSON 对象: %w", err)
	}
	return obj, nil
}

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report server health (always over HTTP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
				return c.Health(ctx)
			})
		},
	}
}
