// Package testutil provides test helpers: an in-memory Redis seeded like a
// SONiC switch, and an in-memory fabric of devices for tracer scenarios.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// StartRedis starts an in-memory Redis server that is stopped when the test
// ends.
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// RedisPort returns the TCP port of an in-memory Redis server.
func RedisPort(t *testing.T, s *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	if err != nil {
		t.Fatalf("parsing redis port %q: %v", s.Port(), err)
	}
	return port
}

// SeedRedis loads a JSON seed file into Redis.
// The JSON format is: { "<db>": { "<redis key>": { "field": "value", ... }, ... }, ... }
// Keys are raw Redis keys because SONiC databases differ in separator
// (APP_DB uses ':', CONFIG_DB and STATE_DB use '|').
func SeedRedis(t *testing.T, addr string, seedFile string) {
	t.Helper()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		t.Fatalf("reading seed file %s: %v", seedFile, err)
	}

	var dbs map[string]map[string]map[string]string
	if err := json.Unmarshal(data, &dbs); err != nil {
		t.Fatalf("parsing seed file %s: %v", seedFile, err)
	}

	for dbName, keys := range dbs {
		db, err := strconv.Atoi(dbName)
		if err != nil {
			t.Fatalf("seed file %s: database %q is not a number", seedFile, dbName)
		}
		for key, fields := range keys {
			WriteHash(t, addr, db, key, fields)
		}
	}
}

// WriteHash writes a single hash to a specific Redis DB.
func WriteHash(t *testing.T, addr string, db int, key string, fields map[string]string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	if len(fields) == 0 {
		// SONiC convention for entries without fields
		fields = map[string]string{"NULL": "NULL"}
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := client.HSet(context.Background(), key, args...).Err(); err != nil {
		t.Fatalf("seeding %s in db %d: %v", key, db, err)
	}
}

// DeleteKey removes a key from a specific Redis DB.
func DeleteKey(t *testing.T, addr string, db int, key string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	if err := client.Del(context.Background(), key).Err(); err != nil {
		t.Fatalf("deleting %s in db %d: %v", key, db, err)
	}
}
