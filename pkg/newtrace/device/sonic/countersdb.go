// COUNTERS_DB client (Redis DB 2). Port and queue statistics are stored under
// their SAI object id; the *_NAME_MAP hashes translate interface names to ids.
package sonic

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
)

// portStatMap maps counter keys onto the SAI port statistics flex-counter
// collects. Keys with no SAI equivalent are left out and end up "unknown":
// input-drops (SAI has a single inbound discard counter, reported as
// input-discards) and the FEC error rates (COUNTERS_DB only holds cumulative
// FEC frame counts, not rates).
var portStatMap = []struct {
	key string
	sai string
}{
	{device.CounterInputErrors, "SAI_PORT_STAT_IF_IN_ERRORS"},
	{device.CounterFramingErrors, "SAI_PORT_STAT_DOT3_STATS_ALIGNMENT_ERRORS"},
	{device.CounterInputRunts, "SAI_PORT_STAT_ETHER_STATS_UNDERSIZE_PKTS"},
	{device.CounterInputGiants, "SAI_PORT_STAT_ETHER_STATS_OVERSIZE_PKTS"},
	{device.CounterInputDiscards, "SAI_PORT_STAT_IF_IN_DISCARDS"},
	{device.CounterOutputErrors, "SAI_PORT_STAT_IF_OUT_ERRORS"},
	{device.CounterOutputDrops, "SAI_PORT_STAT_IF_OUT_DISCARDS"},
	{device.CounterOutputCollisions, "SAI_PORT_STAT_ETHER_STATS_COLLISIONS"},
	{device.CounterMTUErrors, "SAI_PORT_STAT_ETHER_TX_OVERSIZE_PKTS"},
	{device.CounterMACInputCRCErrors, "SAI_PORT_STAT_ETHER_STATS_CRC_ALIGN_ERRORS"},
}

const queueDropStat = "SAI_QUEUE_STAT_DROPPED_PACKETS"

// queueTypePrefix follows the naming of `show queue counters`.
var queueTypePrefix = map[string]string{
	"SAI_QUEUE_TYPE_UNICAST":   "UC",
	"SAI_QUEUE_TYPE_MULTICAST": "MC",
	"SAI_QUEUE_TYPE_ALL":       "ALL",
}

// CountersDBClient wraps Redis client for COUNTERS_DB access (DB 2).
type CountersDBClient struct {
	client *redis.Client
}

// NewCountersDBClient creates a new COUNTERS_DB client.
func NewCountersDBClient(addr string, to Timeouts) *CountersDBClient {
	return &CountersDBClient{client: newRedisClient(addr, CountersDB, to)}
}

// Connect tests the connection.
func (c *CountersDBClient) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection.
func (c *CountersDBClient) Close() error {
	return c.client.Close()
}

// PortCounters reads the statistics of a front-panel port. The boolean is
// false when the name has no port object id (LAGs, unknown names).
func (c *CountersDBClient) PortCounters(ctx context.Context, port string) (*device.RawCounters, bool, error) {
	oid, err := c.client.HGet(ctx, "COUNTERS_PORT_NAME_MAP", port).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading COUNTERS_PORT_NAME_MAP: %w", err)
	}

	stats, err := c.client.HGetAll(ctx, "COUNTERS:"+oid).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading counters of %s (%s): %w", port, oid, err)
	}

	raw := &device.RawCounters{Fields: make(map[string]string)}
	for _, m := range portStatMap {
		if v, ok := stats[m.sai]; ok {
			raw.Fields[m.key] = v
		}
	}

	raw.Queues, err = c.queueDrops(ctx, port)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

type queueRef struct {
	index int
	oid   string
}

// queueDrops returns the drop counter of every queue of port, ordered by
// queue index. Key format in COUNTERS_QUEUE_NAME_MAP: "<port>:<index>".
func (c *CountersDBClient) queueDrops(ctx context.Context, port string) ([]device.RawQueue, error) {
	names, err := c.client.HGetAll(ctx, "COUNTERS_QUEUE_NAME_MAP").Result()
	if err != nil {
		return nil, fmt.Errorf("reading COUNTERS_QUEUE_NAME_MAP: %w", err)
	}

	var refs []queueRef
	for name, oid := range names {
		p, idx, ok := strings.Cut(name, ":")
		if !ok || p != port {
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		refs = append(refs, queueRef{index: n, oid: oid})
	}
	if len(refs) == 0 {
		return nil, nil
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].index < refs[j].index })

	oids := make([]string, len(refs))
	for i, r := range refs {
		oids[i] = r.oid
	}
	types, err := c.client.HMGet(ctx, "COUNTERS_QUEUE_TYPE_MAP", oids...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading COUNTERS_QUEUE_TYPE_MAP: %w", err)
	}

	queues := make([]device.RawQueue, 0, len(refs))
	for i, r := range refs {
		prefix := "Q"
		if t, ok := types[i].(string); ok {
			if p, known := queueTypePrefix[t]; known {
				prefix = p
			}
		}
		drops, err := c.client.HGet(ctx, "COUNTERS:"+r.oid, queueDropStat).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("reading queue %d of %s: %w", r.index, port, err)
		}
		queues = append(queues, device.RawQueue{
			ForwardingClass: prefix + strconv.Itoa(r.index),
			Drops:           drops,
		})
	}
	return queues, nil
}
