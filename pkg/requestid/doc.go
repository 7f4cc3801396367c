// Package requestid correlates HTTP requests with log records.
//
// The middleware reuses a well-formed X-Request-ID header or generates a
// UUIDv4, stores it in the request context and echoes it on the response.
// LoggerExtractor plugs the id into the slog handler built by pkg/logger, so
// every queue operation logged with the request context carries it.
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//
// Invalid client ids are replaced silently; the package returns no errors.
package requestid
