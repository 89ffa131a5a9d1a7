// STATE_DB client (Redis DB 6). STATE_DB keys use '|' as separator and hold
// operational state: the learned MAC table and LACP member state.
package sonic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// StateDBClient wraps Redis client for state_db access (DB 6).
type StateDBClient struct {
	client *redis.Client
}

// NewStateDBClient creates a new state_db client
func NewStateDBClient(addr string, to Timeouts) *StateDBClient {
	return &StateDBClient{client: newRedisClient(addr, StateDB, to)}
}

// Connect tests the connection
func (c *StateDBClient) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection
func (c *StateDBClient) Close() error {
	return c.client.Close()
}

// MACTable reads every learned entry of FDB_TABLE.
// Key format: FDB_TABLE|<vlan>:<mac>.
func (c *StateDBClient) MACTable(ctx context.Context) ([]device.MACEntry, error) {
	keys, err := scanKeys(ctx, c.client, "FDB_TABLE|*", 500)
	if err != nil {
		return nil, fmt.Errorf("scanning FDB_TABLE: %w", err)
	}
	entries := make([]device.MACEntry, 0, len(keys))
	for _, key := range keys {
		entry := strings.TrimPrefix(key, "FDB_TABLE|")
		vlan, mac, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		port, err := c.client.HGet(ctx, key, "port").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		entries = append(entries, device.MACEntry{
			MAC:       mac,
			Interface: port,
			VLAN:      vlan,
		})
	}
	return entries, nil
}

// LAGMembers returns the members teamd reports for lag, in natural interface
// order. Key format: LAG_MEMBER_TABLE|<lag>|<member>.
func (c *StateDBClient) LAGMembers(ctx context.Context, lag string) ([]string, error) {
	prefix := "LAG_MEMBER_TABLE|" + lag + "|"
	keys, err := scanKeys(ctx, c.client, prefix+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning LAG_MEMBER_TABLE for %s: %w", lag, err)
	}
	return membersFromKeys(keys, prefix), nil
}

// membersFromKeys strips prefix from each key and sorts the member names.
// Redis SCAN order is arbitrary; natural order matches what the CLI shows.
func membersFromKeys(keys []string, prefix string) []string {
	members := make([]string, 0, len(keys))
	for _, key := range keys {
		if m := strings.TrimPrefix(key, prefix); m != "" && m != key {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return util.NaturalLess(members[i], members[j]) })
	return members
}
