// Package queueapi serves queues over a JSON HTTP API built on chi.
//
// Producers and workers that cannot link the queue package talk to the same
// queues through it: add, claim, extend, finalize, clean and stats map one to
// one onto queue.Queue. Durations in requests are seconds. Every JSON body is
// wrapped in {"data": ...} or {"error": {"code", "message", "request_id"}}.
//
//	api, err := queueapi.New(queues,
//		queueapi.WithLogger(log),
//		queueapi.WithReadinessChecks(mongo.Healthcheck(client)))
//	if err != nil {
//		return err
//	}
//	srv := httpserver.New(httpserver.WithAddr(":8080"))
//	return srv.Run(ctx, api.Router())
//
// Status codes: 201 for added messages, 204 when no message is claimable or
// after clean, 404 for unknown queues, 409 when a lease token matches no live
// lease, 400 for invalid input.
package queueapi
