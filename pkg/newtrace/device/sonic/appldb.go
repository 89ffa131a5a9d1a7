// APP_DB client (Redis DB 0). APP_DB keys use ':' as separator. newtrace
// reads the kernel neighbor table (ARP), LLDP neighbors and port flap counts.
package sonic

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// AppDBClient wraps Redis client for APP_DB access (DB 0).
type AppDBClient struct {
	client *redis.Client
}

// NewAppDBClient creates a new APP_DB client.
func NewAppDBClient(addr string, to Timeouts) *AppDBClient {
	return &AppDBClient{client: newRedisClient(addr, ApplDB, to)}
}

// Connect tests the connection.
func (c *AppDBClient) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection.
func (c *AppDBClient) Close() error {
	return c.client.Close()
}

// ArpTable reads every IPv4/IPv6 neighbor from NEIGH_TABLE.
//
// Key format: NEIGH_TABLE:<iface>:<ip>. IPv6 addresses contain ':' so the
// key is split at most twice.
func (c *AppDBClient) ArpTable(ctx context.Context) ([]device.ArpEntry, error) {
	keys, err := scanKeys(ctx, c.client, "NEIGH_TABLE:*", 500)
	if err != nil {
		return nil, fmt.Errorf("scanning NEIGH_TABLE: %w", err)
	}
	entries := make([]device.ArpEntry, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		mac, err := c.client.HGet(ctx, key, "neigh").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		entries = append(entries, device.ArpEntry{
			IP:        parts[2],
			MAC:       mac,
			Interface: parts[1],
		})
	}
	return entries, nil
}

// LLDPManagementAddress returns the remote management address learned by
// lldpd on iface, preferring IPv4. Returns "" (not error) if no neighbor.
func (c *AppDBClient) LLDPManagementAddress(ctx context.Context, iface string) (string, error) {
	key := "LLDP_ENTRY_TABLE:" + iface
	addrs, err := c.client.HGet(ctx, key, "lldp_rem_man_addr").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return util.PreferIPv4(addrs), nil
}

// FlapCount returns the oper-status change count of a port or LAG, or ""
// when the image does not track it.
func (c *AppDBClient) FlapCount(ctx context.Context, table, name string) (string, error) {
	val, err := c.client.HGet(ctx, table+":"+name, "flap_count").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
