// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool with retries, Migrate applies goose migrations
// embedded in the calling package, and Healthcheck returns a probe suitable for
// the HTTP server health endpoint.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, "migrations", log); err != nil {
//		return err
//	}
//
// The error helpers (IsNotFoundError, IsDuplicateKeyError, IsSerializationError)
// classify driver errors without leaking pgx types into callers.
package pg
