package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/nodeflow/bootstrap"
	"github.com/kbukum/nodeflow/component"
	"github.com/kbukum/nodeflow/config"
	"github.com/kbukum/nodeflow/coordinator"
	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/httpapi"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/server"
	"github.com/kbukum/nodeflow/sse"
	"github.com/kbukum/nodeflow/units"
)

type serveOptions struct {
	host    string
	port    int
	dirs    []string
	preload []string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graphs over HTTP with server-sent pass events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.HTTP.Host = opts.host
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = opts.port
			}
			cfg.Graphs.Dirs = append(cfg.Graphs.Dirs, opts.dirs...)

			app, err := newService(cfg, opts.preload)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "listen host (overrides http.host)")
	f.IntVar(&opts.port, "port", 0, "listen port (overrides http.port)")
	f.StringSliceVar(&opts.dirs, "graphs-dir", nil, "extra directory searched for graph files (repeatable)")
	f.StringSliceVar(&opts.preload, "preload", nil, "graph names loaded at startup (repeatable)")
	return cmd
}

// service is the wired serve stack.
type service struct {
	*bootstrap.App[*config.Config]
	coord   *coordinator.Coordinator
	catalog *httpapi.Catalog
	server  *server.Server
	hub     *sse.Hub
}

// newService wires the coordinator, the event hub and the HTTP adapter into
// a bootstrap app. Nothing starts until Run.
func newService(cfg *config.Config, preload []string, appOpts ...bootstrap.Option) (*service, error) {
	if !cfg.HTTP.Enabled {
		return nil, fmt.Errorf("serve: http.enabled is false")
	}
	stampVersion(cfg)
	app, err := bootstrap.NewApp(cfg, appOpts...)
	if err != nil {
		return nil, err
	}
	log := app.Logger

	for _, c := range telemetryComponents(cfg, log) {
		if err := app.RegisterComponent(c); err != nil {
			return nil, err
		}
	}

	events := sse.NewComponent(cfg.HTTP.EventsPath, log)
	notifier := sse.NewNotifier(events.Hub(), log)

	engineOpts, err := engineOptions(cfg)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, engine.WithObserver(notifier))

	queue := coordinator.NewQueue(cfg.Engine.DispatchQueue)
	statusLog := log.WithComponent("coordinator")
	coord := coordinator.New(
		coordinator.WithLogger(log),
		coordinator.WithDispatcher(queue),
		coordinator.WithEvents(coordinator.Events{
			OnStatus:   func(s string) { statusLog.Debug("status", logger.Fields("status", s)) },
			OnProgress: notifier.Progress,
		}),
		coordinator.WithEngineOptions(engineOpts...),
	)

	registry := units.NewRegistry()
	catalog := httpapi.NewCatalog(graph.NewFileLoader(cfg.Graphs.Dirs...), registry)

	srv := server.New(cfg.HTTP.Config, log)
	srv.ApplyMiddleware()
	httpapi.New(httpapi.Config{
		ServiceName: cfg.Name,
		Coordinator: coord,
		Catalog:     catalog,
		Registry:    registry,
		Hub:         events.Hub(),
		Health:      app.Health,
		EventsPath:  cfg.HTTP.EventsPath,
		Logger:      log,
	}).Register(srv.GinEngine())

	for _, c := range []component.Component{
		dispatcherComponent(queue, coord, cfg.Engine.DispatchQueue),
		events,
		server.NewComponent(srv),
	} {
		if err := app.RegisterComponent(c); err != nil {
			return nil, err
		}
	}

	app.OnConfigure(func(_ context.Context, a *bootstrap.App[*config.Config]) error {
		for _, name := range preload {
			g, err := catalog.Get(name)
			if err != nil {
				return fmt.Errorf("preload %s: %w", name, err)
			}
			a.Logger.Info("graph loaded", logger.Fields("graph", g.Name, "nodes", g.Len()))
		}
		return nil
	})
	// The pass drains first, then open event streams close so the server
	// shutdown does not wait on them.
	app.OnStop(
		func(context.Context) error { return coord.Close() },
		events.Stop,
	)

	return &service{App: app, coord: coord, catalog: catalog, server: srv, hub: events.Hub()}, nil
}

// dispatcherComponent runs the coordinator's notification queue and reports
// the coordinator's health.
func dispatcherComponent(q *coordinator.Queue, coord *coordinator.Coordinator, size int) component.Component {
	var cancel context.CancelFunc
	done := make(chan struct{})
	return component.NewHook("coordinator",
		func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				q.Run(ctx)
			}()
			return nil
		},
		func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			q.Drain()
			return nil
		},
	).WithHealth(coord).WithDescription(component.Description{
		Name:    "Coordinator",
		Type:    "engine",
		Details: fmt.Sprintf("single-flight, dispatch queue %d", size),
	})
}
