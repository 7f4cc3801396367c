// Package redis connects to the Redis server used by the redisstore queue
// backend.
//
// Config is filled from REDIS_* environment variables. Connect parses the URL,
// pings the server and retries until it answers or the attempts run out.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store, err := redisstore.New(client, "emails", redisstore.WithKeyPrefix(cfg.KeyPrefix))
//
//	checker := redis.Healthcheck(client)
//
// # Errors
//
// ErrFailedToParseRedisConnString and ErrRedisNotReady are joined with the
// underlying go-redis error, so both errors.Is checks work.
package redis
