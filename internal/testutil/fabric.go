package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
)

// Query names used in FakeDevice.Fail, FakeDevice.Delay and Fabric.Calls.
const (
	QueryArp      = "arp"
	QueryMAC      = "mac"
	QueryMembers  = "members"
	QueryPeer     = "peer"
	QueryNeighbor = "neighbor"
	QueryCounters = "counters"
)

// FakeDevice is the state of one simulated network element.
type FakeDevice struct {
	Address string
	Name    string

	Arp        []device.ArpEntry
	MACs       []device.MACEntry
	Aggregates map[string][]string
	Peer       string
	Neighbors  map[string]string              // interface -> management address
	Counters   map[string]*device.RawCounters // interface -> counters

	// OpenErr makes Fabric.Open fail for this device.
	OpenErr error
	// Fail makes the named query return the error.
	Fail map[string]error
	// Delay blocks the named query for the duration or until the query
	// context ends.
	Delay map[string]time.Duration
}

// Fabric is an in-memory device.Dialer over a set of FakeDevices.
type Fabric struct {
	mu      sync.Mutex
	devices map[string]*FakeDevice
	opened  []string
	live    int
	calls   map[string][]string
}

var _ device.Dialer = (*Fabric)(nil)

// NewFabric creates a fabric holding devs.
func NewFabric(devs ...*FakeDevice) *Fabric {
	f := &Fabric{
		devices: make(map[string]*FakeDevice),
		calls:   make(map[string][]string),
	}
	for _, d := range devs {
		f.devices[d.Address] = d
	}
	return f
}

// Open implements device.Dialer.
func (f *Fabric) Open(ctx context.Context, address string, _ device.Credentials) (device.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, address)
	d, ok := f.devices[address]
	if !ok {
		return nil, fmt.Errorf("dial %s: no route to host", address)
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.live++
	return &fakeSession{fabric: f, dev: d}, nil
}

// Opened returns every address Open was called with, in order.
func (f *Fabric) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// LiveSessions returns the number of sessions opened and not yet closed.
func (f *Fabric) LiveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Calls returns the queries issued against address, in order.
func (f *Fabric) Calls(address string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[address]...)
}

// Called reports whether query was issued against address.
func (f *Fabric) Called(address, query string) bool {
	for _, c := range f.Calls(address) {
		if c == query {
			return true
		}
	}
	return false
}

func (f *Fabric) record(address, query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address] = append(f.calls[address], query)
}

type fakeSession struct {
	fabric *Fabric
	dev    *FakeDevice

	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) Address() string { return s.dev.Address }

func (s *fakeSession) Name() string {
	if s.dev.Name == "" {
		return s.dev.Address
	}
	return s.dev.Name
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.fabric.mu.Lock()
	s.fabric.live--
	s.fabric.mu.Unlock()
	return nil
}

// query records the call and applies the configured delay and failure.
func (s *fakeSession) query(ctx context.Context, name string) error {
	s.fabric.record(s.dev.Address, name)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%s: session closed", s.dev.Address)
	}

	if d := s.dev.Delay[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.dev.Fail[name]
}

func (s *fakeSession) ArpTable(ctx context.Context) ([]device.ArpEntry, error) {
	if err := s.query(ctx, QueryArp); err != nil {
		return nil, err
	}
	return append([]device.ArpEntry(nil), s.dev.Arp...), nil
}

func (s *fakeSession) MACTable(ctx context.Context) ([]device.MACEntry, error) {
	if err := s.query(ctx, QueryMAC); err != nil {
		return nil, err
	}
	return append([]device.MACEntry(nil), s.dev.MACs...), nil
}

func (s *fakeSession) AggregateMembers(ctx context.Context, aggregate string) ([]string, error) {
	if err := s.query(ctx, QueryMembers); err != nil {
		return nil, err
	}
	return append([]string{}, s.dev.Aggregates[aggregate]...), nil
}

func (s *fakeSession) RedundancyPeerAddress(ctx context.Context) (string, error) {
	if err := s.query(ctx, QueryPeer); err != nil {
		return "", err
	}
	return s.dev.Peer, nil
}

func (s *fakeSession) NeighborManagementAddress(ctx context.Context, iface string) (string, error) {
	if err := s.query(ctx, QueryNeighbor); err != nil {
		return "", err
	}
	return s.dev.Neighbors[iface], nil
}

func (s *fakeSession) InterfaceCounters(ctx context.Context, iface string) (*device.RawCounters, error) {
	if err := s.query(ctx, QueryCounters); err != nil {
		return nil, err
	}
	raw, ok := s.dev.Counters[iface]
	if !ok {
		return &device.RawCounters{Fields: map[string]string{}}, nil
	}
	out := &device.RawCounters{
		Fields: make(map[string]string, len(raw.Fields)),
		Queues: append([]device.RawQueue(nil), raw.Queues...),
	}
	for k, v := range raw.Fields {
		out.Fields[k] = v
	}
	return out, nil
}

// FullCounters returns RawCounters reporting value for every canonical key,
// plus two queues.
func FullCounters(value string) *device.RawCounters {
	raw := &device.RawCounters{Fields: make(map[string]string)}
	for _, k := range AllCounterKeys() {
		raw.Fields[k] = value
	}
	raw.Queues = []device.RawQueue{
		{ForwardingClass: "best-effort", Drops: value},
		{ForwardingClass: "network-control", Drops: "0"},
	}
	return raw
}

// AllCounterKeys lists the canonical counter keys, sorted.
func AllCounterKeys() []string {
	keys := []string{
		device.CounterInputErrors, device.CounterInputDrops, device.CounterFramingErrors,
		device.CounterInputRunts, device.CounterInputGiants, device.CounterInputDiscards,
		device.CounterInputL3Incompletes, device.CounterInputL2ChannelErrs,
		device.CounterInputL2MismatchTOs, device.CounterInputFIFOErrors,
		device.CounterInputResourceErrors,
		device.CounterCarrierTransitions, device.CounterOutputErrors,
		device.CounterOutputCollisions, device.CounterOutputDrops, device.CounterAgedPackets,
		device.CounterMTUErrors, device.CounterHSLinkCRCErrors, device.CounterOutputFIFOErrors,
		device.CounterOutputResourceErrors,
		device.CounterPCSBitErrorSeconds, device.CounterPCSErroredBlockSeconds,
		device.CounterFECCorrectableRate, device.CounterFECUncorrectableRate,
		device.CounterMACInputCRCErrors, device.CounterMACOutputCRCErrors,
		device.CounterMACInputFIFOErrors, device.CounterMACOutputFIFOErrors,
	}
	sort.Strings(keys)
	return keys
}
