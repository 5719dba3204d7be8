// Package requestid tags each HTTP request with a correlation id.
//
// The middleware reuses a well-formed X-Request-ID from the client, otherwise it
// generates a UUIDv7. The id is echoed in the response header, stored in the
// request context and, through LoggerExtractor, added to every log record:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware())
package requestid
