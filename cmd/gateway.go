package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/httpbridge/internal/agent"
	"github.com/nextlevelbuilder/httpbridge/internal/bus"
	"github.com/nextlevelbuilder/httpbridge/internal/channels"
	"github.com/nextlevelbuilder/httpbridge/internal/channels/httpbridge"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/gateway"
	httpapi "github.com/nextlevelbuilder/httpbridge/internal/http"
	"github.com/nextlevelbuilder/httpbridge/internal/reply"
	"github.com/nextlevelbuilder/httpbridge/internal/tasks"
	"github.com/nextlevelbuilder/httpbridge/internal/tracing"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// drainTimeout bounds how long shutdown waits for in-flight replies.
const drainTimeout = 15 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}
}

func runGateway() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("otel tracing unavailable", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	slog.Info("session store ready", "backend", stores.Backend)

	msgBus := bus.New()
	agents := agent.NewRouter(agent.DefaultProviderFactory)
	taskGroup := tasks.NewGroup(nil)

	bridge := httpbridge.New(cfg, httpbridge.Runtime{
		Sessions: stores.Sessions,
		Replies:  reply.NewDispatcher(agents),
		Tasks:    taskGroup,
	}, msgBus)

	manager := channels.NewManager(msgBus)
	manager.RegisterChannel(httpbridge.ChannelName, bridge)

	server := gateway.NewServer(cfg, msgBus, bridge.Handler(),
		httpapi.NewChannelsHandler(manager, bridge, msgBus, cfg.Gateway.Token),
		httpapi.NewSessionsHandler(stores.Sessions, cfg.Gateway.Token),
	)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		watcher := config.NewWatcher(cfgPath, cfg, func(next *config.Config) {
			agents.InvalidateAll()
			if err := bridge.Reload(gctx, next); err != nil {
				slog.Error("httpbridge reload failed", "error", err)
				return
			}
			msgBus.Broadcast(bus.Event{Name: protocol.EventConfigReloaded, Payload: map[string]string{"hash": next.Hash()}})
		})
		if err := watcher.Run(gctx); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("graceful shutdown initiated")
	msgBus.Broadcast(bus.Event{Name: protocol.EventShutdown})

	if stopErr := manager.StopAll(context.Background()); stopErr != nil {
		slog.Error("stop channels", "error", stopErr)
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if waitErr := taskGroup.WaitContext(drainCtx); waitErr != nil {
		slog.Warn("shutdown before in-flight replies finished", "error", waitErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("gateway stopped")
	return nil
}
