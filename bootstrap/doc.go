// Package bootstrap runs a nodeflow process through its lifecycle.
//
// An App owns the component registry and the logger built from the service
// configuration. Run serves until SIGINT/SIGTERM; RunTask runs one finite
// task (a CLI pass) with the same startup and shutdown sequence:
//
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(sse.NewComponent(cfg.HTTP.EventsPath, app.Logger))
//	app.RegisterComponent(server.NewComponent(srv))
//	app.OnStop(func(ctx context.Context) error { return coord.Close() })
//	return app.Run(ctx)
//
// Startup order is: start components, OnStart hooks, configure callbacks,
// ready check, OnReady hooks, summary. Shutdown runs OnStop hooks and then
// stops components in reverse registration order.
package bootstrap
