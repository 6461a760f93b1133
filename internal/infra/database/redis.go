package database

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds the activity pub/sub client. A positive timeout bounds
// dialing and command round trips.
func NewRedis(addr, password string, db int, timeout time.Duration) *redis.Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return redis.NewClient(opts)
}
