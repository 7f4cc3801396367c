// Package httpserver runs the queue HTTP API with configurable timeouts and
// graceful shutdown.
//
// Server is built with New or NewFromConfig (HTTP_* variables) and options
// such as WithAddr, WithReadHeaderTimeout and WithLogger. Run opens the
// listener, closes Ready, and serves until its context is cancelled or
// Shutdown is called; in-flight requests then drain for up to the shutdown
// timeout. Addr reports the bound address, which matters with port 0.
//
// LivenessHandler and ReadinessHandler serve the /health endpoints; readiness
// runs the store health checks (mongo.Healthcheck, pg.Healthcheck,
// redis.Healthcheck) under the request context.
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, api.Router()); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// # Errors
//
// Run joins listen and serve failures with ErrStart (and ErrAlreadyRunning on
// a second call); Shutdown joins drain failures with ErrShutdown.
package httpserver
