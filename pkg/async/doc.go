// Package async provides small helpers for work that runs outside the request path.
//
// Future and Async wrap a single asynchronous computation. Runner executes
// fire-and-forget tasks, such as notification emails or best-effort provider cleanup,
// detached from the caller's cancellation but bounded by their own timeout. A failing
// or panicking task is logged and never affects the request that started it.
//
// # Usage
//
//	runner := async.NewRunner(async.WithLogger(log), async.WithTaskTimeout(15*time.Second))
//
//	runner.Detach(r.Context(), "send-welcome-email", func(ctx context.Context) error {
//		return mailer.SendEmail(ctx, params)
//	})
//
//	// during shutdown
//	_ = runner.Shutdown(shutdownCtx)
package async
