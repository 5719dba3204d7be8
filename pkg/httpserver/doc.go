// Package httpserver runs an http.Handler with sane timeouts, signal handling
// and graceful shutdown.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithShutdownHook("async-runner", runner.Shutdown),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// HealthCheckHandler builds liveness and readiness endpoints from named checks.
package httpserver
