package sonic

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// SONiC database numbers (see /var/run/redis/sonic-db/database_config.json).
const (
	ApplDB     = 0
	CountersDB = 2
	ConfigDB   = 4
	StateDB    = 6
)

// Timeouts bound every Redis round trip in addition to the caller's context.
type Timeouts struct {
	Dial  time.Duration
	Read  time.Duration
	Write time.Duration
}

func newRedisClient(addr string, db int, to Timeouts) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  to.Dial,
		ReadTimeout:  to.Read,
		WriteTimeout: to.Write,
		MaxRetries:   -1, // no automatic retry of a failed query
		PoolSize:     2,
	})
}

// scanKeys collects all keys matching pattern using cursor-based SCAN
// (non-blocking, unlike KEYS *).
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
