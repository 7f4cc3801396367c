// Package redisstore stores queue messages in Redis.
//
// A message is a hash; sorted sets keyed by visibility time, lease deadline
// and completion time answer claims and counts. Each mutation runs as a single
// Lua script, so claims stay atomic across any number of workers.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store, err := redisstore.New(client, "emails", redisstore.WithKeyPrefix(cfg.KeyPrefix))
//	if err != nil {
//		return err
//	}
//	q, err := queue.New(store, "emails")
package redisstore
