package sonic

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Options configures how sessions to SONiC switches are opened.
type Options struct {
	// ConnectTimeout bounds the SSH dial and the initial Redis pings.
	ConnectTimeout time.Duration
	// Redis bounds each Redis round trip.
	Redis Timeouts
	// KnownHostsFile enables SSH host key verification. Empty disables it.
	KnownHostsFile string
	// DirectRedisPort, when set, connects to <address>:<port> without SSH if
	// no username is given. Lab use only: SONiC Redis has no authentication.
	DirectRedisPort int
}

// Dialer opens sessions to SONiC switches.
type Dialer struct {
	opts Options
}

// NewDialer creates a SONiC dialer.
func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts}
}

var _ device.Dialer = (*Dialer)(nil)

// Open establishes the SSH tunnel and the Redis connections to every
// database newtrace reads. Any failure is a *util.ConnectionError.
func (dl *Dialer) Open(ctx context.Context, address string, creds device.Credentials) (device.Session, error) {
	if dl.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dl.opts.ConnectTimeout)
		defer cancel()
	}

	d := &Device{addr: address, name: address}

	var redisAddr string
	switch {
	case creds.User != "":
		tun, err := NewSSHTunnel(ctx, address, creds, dl.opts.ConnectTimeout, dl.opts.KnownHostsFile)
		if err != nil {
			return nil, util.NewConnectionError(address, err)
		}
		d.tunnel = tun
		redisAddr = tun.LocalAddr()
	case dl.opts.DirectRedisPort > 0:
		redisAddr = net.JoinHostPort(address, strconv.Itoa(dl.opts.DirectRedisPort))
	default:
		return nil, util.NewConnectionError(address, fmt.Errorf("no SSH username given"))
	}

	d.config = NewConfigDBClient(redisAddr, dl.opts.Redis)
	d.state = NewStateDBClient(redisAddr, dl.opts.Redis)
	d.appl = NewAppDBClient(redisAddr, dl.opts.Redis)
	d.counters = NewCountersDBClient(redisAddr, dl.opts.Redis)

	for _, c := range []struct {
		name    string
		connect func(context.Context) error
	}{
		{"config_db", d.config.Connect},
		{"state_db", d.state.Connect},
		{"app_db", d.appl.Connect},
		{"counters_db", d.counters.Connect},
	} {
		if err := c.connect(ctx); err != nil {
			d.Close()
			return nil, util.NewConnectionError(address, fmt.Errorf("connecting to %s: %w", c.name, err))
		}
	}

	if name, err := d.config.Hostname(ctx); err != nil {
		util.WithDevice(address).Warnf("Failed to read hostname: %v", err)
	} else if name != "" {
		d.name = name
	}

	util.WithDevice(address).WithField("hostname", d.name).Info("Connected")
	return d, nil
}

// Device is an open session to one SONiC switch.
type Device struct {
	addr string
	name string

	config   *ConfigDBClient
	state    *StateDBClient
	appl     *AppDBClient
	counters *CountersDBClient
	tunnel   *SSHTunnel // nil for direct Redis access

	mu     sync.Mutex
	closed bool
}

var _ device.Session = (*Device)(nil)

// Address returns the management address.
func (d *Device) Address() string { return d.addr }

// Name returns the hostname from DEVICE_METADATA, or the address.
func (d *Device) Name() string { return d.name }

// Close closes all Redis connections and the SSH tunnel.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.config != nil {
		d.config.Close()
	}
	if d.state != nil {
		d.state.Close()
	}
	if d.appl != nil {
		d.appl.Close()
	}
	if d.counters != nil {
		d.counters.Close()
	}
	if d.tunnel != nil {
		d.tunnel.Close()
		d.tunnel = nil
	}

	util.WithDevice(d.addr).Info("Disconnected")
	return nil
}

// ArpTable reads APP_DB NEIGH_TABLE.
func (d *Device) ArpTable(ctx context.Context) ([]device.ArpEntry, error) {
	return d.appl.ArpTable(ctx)
}

// MACTable reads STATE_DB FDB_TABLE.
func (d *Device) MACTable(ctx context.Context) ([]device.MACEntry, error) {
	return d.state.MACTable(ctx)
}

// AggregateMembers prefers the LACP operational membership in STATE_DB and
// falls back to the configured membership when teamd has not published any.
func (d *Device) AggregateMembers(ctx context.Context, aggregate string) ([]string, error) {
	members, err := d.state.LAGMembers(ctx, aggregate)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return members, nil
	}
	return d.config.PortChannelMembers(ctx, aggregate)
}

// RedundancyPeerAddress reads the MC-LAG keepalive peer from CONFIG_DB.
func (d *Device) RedundancyPeerAddress(ctx context.Context) (string, error) {
	return d.config.MCLAGPeerAddress(ctx)
}

// NeighborManagementAddress reads the LLDP remote management address.
func (d *Device) NeighborManagementAddress(ctx context.Context, iface string) (string, error) {
	return d.appl.LLDPManagementAddress(ctx, iface)
}

// InterfaceCounters reads port statistics from COUNTERS_DB. PortChannels have
// no port object id; their counters are the member sums.
func (d *Device) InterfaceCounters(ctx context.Context, iface string) (*device.RawCounters, error) {
	raw, ok, err := d.counters.PortCounters(ctx, iface)
	if err != nil {
		return nil, err
	}
	flapTable := "PORT_TABLE"
	if !ok {
		raw, err = d.aggregateCounters(ctx, iface)
		if err != nil {
			return nil, err
		}
		flapTable = "LAG_TABLE"
	}

	flaps, err := d.appl.FlapCount(ctx, flapTable, iface)
	if err != nil {
		util.WithDevice(d.addr).Debugf("Failed to read flap count of %s: %v", iface, err)
	} else if flaps != "" {
		raw.Fields[device.CounterCarrierTransitions] = flaps
	}
	return raw, nil
}

func (d *Device) aggregateCounters(ctx context.Context, lag string) (*device.RawCounters, error) {
	members, err := d.AggregateMembers(ctx, lag)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, util.NewLookupError(d.name, "counters", lag)
	}

	perMember := make([]*device.RawCounters, 0, len(members))
	for _, m := range members {
		raw, ok, err := d.counters.PortCounters(ctx, m)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.NewLookupError(d.name, "counters", m)
		}
		perMember = append(perMember, raw)
	}
	return sumCounters(perMember), nil
}

// sumCounters adds up fields every member reports as an integer. A field
// missing or non-numeric on any member is left out of the sum.
func sumCounters(members []*device.RawCounters) *device.RawCounters {
	sum := &device.RawCounters{Fields: make(map[string]string)}
	if len(members) == 0 {
		return sum
	}
	for key := range members[0].Fields {
		var total uint64
		complete := true
		for _, m := range members {
			v, err := strconv.ParseUint(m.Fields[key], 10, 64)
			if err != nil {
				complete = false
				break
			}
			total += v
		}
		if complete {
			sum.Fields[key] = strconv.FormatUint(total, 10)
		}
	}
	return sum
}
