// CONFIG_DB client (Redis DB 4). Read-only: newtrace never writes config.
package sonic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ConfigDBClient wraps Redis client for config_db access (DB 4).
type ConfigDBClient struct {
	client *redis.Client
}

// NewConfigDBClient creates a new config_db client
func NewConfigDBClient(addr string, to Timeouts) *ConfigDBClient {
	return &ConfigDBClient{client: newRedisClient(addr, ConfigDB, to)}
}

// Connect tests the connection
func (c *ConfigDBClient) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection
func (c *ConfigDBClient) Close() error {
	return c.client.Close()
}

// Hostname reads DEVICE_METADATA|localhost hostname. Returns "" if unset.
func (c *ConfigDBClient) Hostname(ctx context.Context) (string, error) {
	name, err := c.client.HGet(ctx, "DEVICE_METADATA|localhost", "hostname").Result()
	if err == redis.Nil {
		return "", nil
	}
	return name, err
}

// MCLAGPeerAddress returns peer_ip of the first MCLAG_DOMAIN (lowest domain
// id). peer_ip is the keepalive address, reachable independently of the
// peer-link. Returns "" when no MC-LAG domain is configured.
func (c *ConfigDBClient) MCLAGPeerAddress(ctx context.Context) (string, error) {
	keys, err := scanKeys(ctx, c.client, "MCLAG_DOMAIN|*", 100)
	if err != nil {
		return "", fmt.Errorf("scanning MCLAG_DOMAIN: %w", err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		peer, err := c.client.HGet(ctx, key, "peer_ip").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", key, err)
		}
		if peer = strings.TrimSpace(peer); peer != "" {
			return peer, nil
		}
	}
	return "", nil
}

// PortChannelMembers returns configured members of a PortChannel.
// Key format: PORTCHANNEL_MEMBER|<lag>|<member>.
func (c *ConfigDBClient) PortChannelMembers(ctx context.Context, lag string) ([]string, error) {
	prefix := "PORTCHANNEL_MEMBER|" + lag + "|"
	keys, err := scanKeys(ctx, c.client, prefix+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning PORTCHANNEL_MEMBER for %s: %w", lag, err)
	}
	return membersFromKeys(keys, prefix), nil
}
