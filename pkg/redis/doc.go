// Package redis connects to Redis with retries and exposes a readiness probe.
//
// The client backs the shared rate-limit store when several replicas must
// enforce one budget:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	store := ratelimit.NewRedisStore(client)
package redis
