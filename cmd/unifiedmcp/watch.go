package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/internal/observability/metrics"
	"UnifiedMCP-Client/internal/relay"
	"UnifiedMCP-Client/pkg/logger"
	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

const watchBuffer = 256

// errRealtimeLost 表示 watch 期间实时连接断开，属于可重试的失败。
var errRealtimeLost = xerrors.New(xerrors.CodeNotConnected, "realtime connection lost")

func newWatchCommand(a *app) *cobra.Command {
	var events []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print push events and relay them to the configured sinks",
		Long: `watch subscribes to server push events over the realtime channel, prints
each one as a JSON line and forwards it to the relay drivers listed in the
config file. When metrics.address is set a Prometheus endpoint is served
for the lifetime of the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), events)
		},
	}
	cmd.Flags().StringSliceVar(&events, "events", []string{
		unifiedmcp.EventTaskUpdated,
		unifiedmcp.EventTaskDeleted,
		unifiedmcp.EventAgentUpdated,
	}, "push events to subscribe to")
	return cmd
}

func (a *app) watch(ctx context.Context, events []string) error {
	log := logger.Named("watch")
	if a.cfg.Metrics.Address != "" {
		a.registry = prometheus.NewRegistry()
	}

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	if !client.Connected() {
		return errors.New("watch requires the realtime channel; check the server URL and --no-realtime")
	}

	sink, err := relay.Open(ctx, a.cfg.Relay)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	queue := make(chan relay.Event, watchBuffer)
	for _, name := range events {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		client.On(name, unifiedmcp.NewHandler(func(data any) error {
			event, err := relay.NewEvent(name, data)
			if err != nil {
				return err
			}
			select {
			case queue <- event:
				return nil
			default:
				return fmt.Errorf("watch buffer full, dropping %s event %s", name, event.ID)
			}
		}))
	}
	log.Info("watching push events", slog.Any("events", events), slog.Bool("relay", sink != nil))

	g, gctx := errgroup.WithContext(ctx)
	if a.registry != nil {
		g.Go(func() error {
			err := metrics.StartServer(gctx, a.cfg.Metrics.Address, a.registry)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case event := <-queue:
				if err := a.printLine(event); err != nil {
					return err
				}
				if sink == nil {
					continue
				}
				if err := sink.Publish(gctx, event); err != nil {
					attrs := append([]slog.Attr{
						slog.String("event", event.Name),
						slog.String("id", event.ID),
						slog.Any("error", err),
					}, xerrors.LogAttrs(err)...)
					log.LogAttrs(gctx, xerrors.LevelOf(err), "relay event failed", attrs...)
				}
			}
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-client.Disconnected():
			return errRealtimeLost
		}
	})
	return g.Wait()
}

func (a *app) printLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(line))
	return err
}
