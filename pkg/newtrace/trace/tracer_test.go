package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/newtrace/internal/testutil"
	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

const (
	targetIP = "10.0.0.5"
	targetHW = HardwareAddress("aa:bb:cc:00:01:02")
)

var targetArp = []device.ArpEntry{{IP: targetIP, MAC: "AA:BB:CC:00:01:02"}}

func learnedOn(iface string) []device.MACEntry {
	return []device.MACEntry{
		{MAC: "aa:bb:cc:00:00:99", Interface: "xe-0/0/9.0"},
		{MAC: string(targetHW), Interface: iface},
	}
}

func runTrace(t *testing.T, f *testutil.Fabric, opts Options) *Trace {
	t.Helper()
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = time.Second
	}
	tr := New(f, device.Credentials{User: "admin", Password: "x"}, opts).Run(context.Background(), "10.0.0.1", targetIP)
	if n := f.LiveSessions(); n != 0 {
		t.Errorf("%d sessions left open after the trace", n)
	}
	return tr
}

func hopDevices(tr *Trace) []string {
	var out []string
	for _, h := range tr.Hops {
		out = append(out, h.Device.Address)
	}
	return out
}

// Single device, aggregate with two members, no neighbor.
func TestTracer_SingleAggregateHop(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address:    "10.0.0.1",
		Name:       "d1",
		Arp:        targetArp,
		MACs:       learnedOn("ae0.100"),
		Aggregates: map[string][]string{"ae0": {"et-0/0/1", "et-0/0/2"}},
		Counters: map[string]*device.RawCounters{
			"ae0":      testutil.FullCounters("3"),
			"et-0/0/1": testutil.FullCounters("1"),
			"et-0/0/2": testutil.FullCounters("2"),
		},
	})

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonEndOfPath {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonEndOfPath)
	}
	if tr.Err() != nil {
		t.Errorf("Err() = %v, want nil", tr.Err())
	}
	if tr.HardwareAddress != targetHW {
		t.Errorf("HardwareAddress = %q, want %q", tr.HardwareAddress, targetHW)
	}
	if len(tr.Hops) != 1 {
		t.Fatalf("len(Hops) = %d, want 1", len(tr.Hops))
	}

	hop := tr.Hops[0]
	if hop.Device.Name != "d1" || hop.Peer != nil {
		t.Errorf("hop device = %v, peer = %v", hop.Device, hop.Peer)
	}
	wantIface := &InterfaceRef{
		Name:  "ae0",
		Class: ClassAggregate,
		Members: []InterfaceRef{
			{Name: "et-0/0/1", Class: ClassPhysical},
			{Name: "et-0/0/2", Class: ClassPhysical},
		},
	}
	if diff := cmp.Diff(wantIface, hop.Interface); diff != "" {
		t.Errorf("Interface mismatch (-want +got):\n%s", diff)
	}
	if hop.Aggregate == nil || hop.Aggregate.Interface != "ae0" || hop.Aggregate.Physical != nil {
		t.Errorf("Aggregate snapshot = %+v, want ae0 without physical stats", hop.Aggregate)
	}
	if len(hop.Counters) != 2 || hop.Counters[0].Interface != "et-0/0/1" || hop.Counters[1].Interface != "et-0/0/2" {
		t.Fatalf("member snapshots = %+v", hop.Counters)
	}
	if got := hop.Counters[1].Input[0].String(); got != "2" {
		t.Errorf("et-0/0/2 input-errors = %q, want %q", got, "2")
	}
	if hop.NextHop != "" {
		t.Errorf("NextHop = %q, want empty", hop.NextHop)
	}
}

// Target learned on the redundancy peer only.
func TestTracer_ResolvedOnPeerOnly(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1",
			Peer:    "10.0.0.9",
			Arp:     targetArp,
			MACs:    []device.MACEntry{{MAC: "aa:bb:cc:00:00:99", Interface: "xe-0/0/9.0"}},
		},
		&testutil.FakeDevice{
			Address: "10.0.0.9",
			Name:    "d2",
			Arp:     targetArp,
			MACs:    []device.MACEntry{{MAC: string(targetHW), Interface: "xe-0/0/3.0"}},
		},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonEndOfPath {
		t.Errorf("Reason = %s (%v), want %s", tr.Reason, tr.Err(), ReasonEndOfPath)
	}
	if len(tr.Hops) != 1 {
		t.Fatalf("len(Hops) = %d, want 1", len(tr.Hops))
	}
	hop := tr.Hops[0]
	if hop.Resolved() {
		t.Errorf("primary resolved on %v, want unresolved", hop.Interface)
	}
	if len(hop.Counters) != 0 {
		t.Errorf("primary has %d snapshots, want none", len(hop.Counters))
	}
	if hop.Peer == nil || !hop.Peer.Resolved() {
		t.Fatalf("peer = %+v, want resolved", hop.Peer)
	}
	if hop.Peer.Interface.Name != "xe-0/0/3" || hop.Peer.Device.Name != "d2" {
		t.Errorf("peer resolved %s on %s, want xe-0/0/3 on d2", hop.Peer.Interface.Name, hop.Peer.Device.Name)
	}
	if len(hop.Peer.Counters) != 1 {
		t.Errorf("peer has %d snapshots, want 1", len(hop.Peer.Counters))
	}
	if !f.Called("10.0.0.1", testutil.QueryMAC) {
		t.Error("primary reachability was not checked")
	}
}

// ARP entry on the primary only, hardware address learned on the peer only.
func TestTracer_PeerUsesFirstHopHardwareAddress(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1",
			Name:    "d1",
			Peer:    "10.0.0.9",
			Arp:     targetArp,
			MACs:    []device.MACEntry{{MAC: "aa:bb:cc:00:00:99", Interface: "xe-0/0/9.0"}},
		},
		&testutil.FakeDevice{
			Address: "10.0.0.9",
			Name:    "d2",
			MACs:    []device.MACEntry{{MAC: string(targetHW), Interface: "xe-0/0/3.0"}},
		},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonEndOfPath {
		t.Fatalf("Reason = %s (%v), want %s", tr.Reason, tr.Err(), ReasonEndOfPath)
	}
	if tr.HardwareAddress != targetHW {
		t.Errorf("HardwareAddress = %q, want %q", tr.HardwareAddress, targetHW)
	}
	if len(tr.Hops) != 1 {
		t.Fatalf("len(Hops) = %d, want 1", len(tr.Hops))
	}
	hop := tr.Hops[0]
	if hop.Resolved() {
		t.Errorf("primary resolved on %v, want unresolved", hop.Interface)
	}
	if hop.Peer == nil || !hop.Peer.Resolved() || hop.Peer.Interface.Name != "xe-0/0/3" {
		t.Fatalf("peer = %+v, want resolved on xe-0/0/3", hop.Peer)
	}
	if !f.Called("10.0.0.9", testutil.QueryMAC) {
		t.Error("peer switching table was not checked")
	}
}

// Neither the device nor its peer knows the target.
func TestTracer_TargetUnreachable(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{Address: "10.0.0.1", Peer: "10.0.0.9"},
		&testutil.FakeDevice{Address: "10.0.0.9"},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonTargetUnreachable {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonTargetUnreachable)
	}
	if len(tr.Hops) != 0 {
		t.Errorf("len(Hops) = %d, want 0", len(tr.Hops))
	}
	if !errors.Is(tr.Err(), util.ErrTargetUnreachable) {
		t.Errorf("Err() = %v, want ErrTargetUnreachable", tr.Err())
	}
	if tr.Error == "" {
		t.Error("Error text not set")
	}
}

func TestTracer_MultiHop(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address:   "10.0.0.1",
			Arp:       targetArp,
			MACs:      learnedOn("et-0/0/0.0"),
			Neighbors: map[string]string{"et-0/0/0": "10.0.0.2"},
		},
		&testutil.FakeDevice{
			Address:    "10.0.0.2",
			MACs:       learnedOn("ae1"),
			Aggregates: map[string][]string{"ae1": {"et-0/0/4", "et-0/0/5"}},
			// Only the first member is consulted.
			Neighbors: map[string]string{"et-0/0/5": "10.0.0.7"},
		},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonEndOfPath {
		t.Errorf("Reason = %s (%v), want %s", tr.Reason, tr.Err(), ReasonEndOfPath)
	}
	if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.2"}, hopDevices(tr)); diff != "" {
		t.Errorf("hop devices mismatch (-want +got):\n%s", diff)
	}
	for i, h := range tr.Hops {
		if h.Index != i {
			t.Errorf("Hops[%d].Index = %d", i, h.Index)
		}
	}
	if tr.Hops[0].NextHop != "10.0.0.2" {
		t.Errorf("hop 0 NextHop = %q, want %q", tr.Hops[0].NextHop, "10.0.0.2")
	}
	if f.Called("10.0.0.2", testutil.QueryArp) {
		t.Error("hop 1 re-resolved the hardware address from ARP")
	}
	if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.2"}, f.Opened()); diff != "" {
		t.Errorf("opened devices mismatch (-want +got):\n%s", diff)
	}
}

func TestTracer_PeerNextHopWins(t *testing.T) {
	end := func(addr string) *testutil.FakeDevice {
		return &testutil.FakeDevice{Address: addr, MACs: learnedOn("xe-0/0/1")}
	}
	pair := func(peerOpenErr error) *testutil.Fabric {
		return testutil.NewFabric(
			&testutil.FakeDevice{
				Address: "10.0.0.1", Peer: "10.0.0.9", Arp: targetArp, MACs: learnedOn("ae0"),
				Aggregates: map[string][]string{"ae0": {"et-0/0/1"}},
				Neighbors:  map[string]string{"et-0/0/1": "10.0.0.3"},
			},
			&testutil.FakeDevice{
				Address: "10.0.0.9", Arp: targetArp, MACs: learnedOn("ae0"),
				Aggregates: map[string][]string{"ae0": {"et-0/0/1"}},
				Neighbors:  map[string]string{"et-0/0/1": "10.0.0.4"},
			},
			end("10.0.0.3"),
			&testutil.FakeDevice{Address: "10.0.0.4", MACs: learnedOn("xe-0/0/1"), OpenErr: peerOpenErr},
		)
	}

	t.Run("peer overrides primary", func(t *testing.T) {
		tr := runTrace(t, pair(nil), Options{})
		if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.4"}, hopDevices(tr)); diff != "" {
			t.Errorf("hop devices mismatch (-want +got):\n%s", diff)
		}
		if tr.Hops[0].NextHop != "10.0.0.3" || tr.Hops[0].Peer.NextHop != "10.0.0.4" {
			t.Errorf("next hops = %q / %q", tr.Hops[0].NextHop, tr.Hops[0].Peer.NextHop)
		}
	})

	t.Run("falls back to primary next hop", func(t *testing.T) {
		f := pair(errors.New("connection refused"))
		tr := runTrace(t, f, Options{})
		if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.3"}, hopDevices(tr)); diff != "" {
			t.Errorf("hop devices mismatch (-want +got):\n%s", diff)
		}
		if tr.Reason != ReasonEndOfPath {
			t.Errorf("Reason = %s, want %s", tr.Reason, ReasonEndOfPath)
		}
		if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.9", "10.0.0.4", "10.0.0.3"}, f.Opened()); diff != "" {
			t.Errorf("open order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTracer_ConnectionErrors(t *testing.T) {
	t.Run("start device", func(t *testing.T) {
		f := testutil.NewFabric()
		tr := runTrace(t, f, Options{})
		if tr.Reason != ReasonConnectionError {
			t.Errorf("Reason = %s, want %s", tr.Reason, ReasonConnectionError)
		}
		var ce *util.ConnectionError
		if !errors.As(tr.Err(), &ce) || ce.Address != "10.0.0.1" {
			t.Errorf("Err() = %v, want ConnectionError for 10.0.0.1", tr.Err())
		}
		if len(tr.Hops) != 0 {
			t.Errorf("len(Hops) = %d, want 0", len(tr.Hops))
		}
	})

	t.Run("next hop", func(t *testing.T) {
		f := testutil.NewFabric(&testutil.FakeDevice{
			Address:   "10.0.0.1",
			Arp:       targetArp,
			MACs:      learnedOn("xe-0/0/1"),
			Neighbors: map[string]string{"xe-0/0/1": "10.0.0.2"},
		})
		tr := runTrace(t, f, Options{})
		if tr.Reason != ReasonConnectionError {
			t.Errorf("Reason = %s, want %s", tr.Reason, ReasonConnectionError)
		}
		if !errors.Is(tr.Err(), util.ErrConnection) {
			t.Errorf("Err() = %v, want ErrConnection", tr.Err())
		}
		if len(tr.Hops) != 1 {
			t.Errorf("len(Hops) = %d, want the hop before the failure", len(tr.Hops))
		}
	})
}

func TestTracer_LoopDetected(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("xe-0/0/1"),
			Neighbors: map[string]string{"xe-0/0/1": "10.0.0.2"},
		},
		&testutil.FakeDevice{
			Address: "10.0.0.2", MACs: learnedOn("xe-0/0/2"),
			Neighbors: map[string]string{"xe-0/0/2": "10.0.0.1"},
		},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonLoopDetected {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonLoopDetected)
	}
	if !errors.Is(tr.Err(), util.ErrLoopDetected) {
		t.Errorf("Err() = %v, want ErrLoopDetected", tr.Err())
	}
	if len(tr.Hops) != 2 {
		t.Errorf("len(Hops) = %d, want 2", len(tr.Hops))
	}
}

func TestTracer_HopLimit(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("xe-0/0/1"),
			Neighbors: map[string]string{"xe-0/0/1": "10.0.0.2"},
		},
		&testutil.FakeDevice{
			Address: "10.0.0.2", MACs: learnedOn("xe-0/0/2"),
			Neighbors: map[string]string{"xe-0/0/2": "10.0.0.1"},
		},
	)

	tr := runTrace(t, f, Options{MaxHops: 3, DisableLoopGuard: true})

	if tr.Reason != ReasonHopLimit {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonHopLimit)
	}
	if !errors.Is(tr.Err(), util.ErrHopLimit) {
		t.Errorf("Err() = %v, want ErrHopLimit", tr.Err())
	}
	if diff := cmp.Diff([]string{"10.0.0.1", "10.0.0.2", "10.0.0.1"}, hopDevices(tr)); diff != "" {
		t.Errorf("hop devices mismatch (-want +got):\n%s", diff)
	}
}

func TestTracer_QueryTimeoutOnPrimary(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1", Peer: "10.0.0.9", Arp: targetArp, MACs: learnedOn("ae0"),
			Delay: map[string]time.Duration{testutil.QueryMAC: 5 * time.Second},
		},
		&testutil.FakeDevice{Address: "10.0.0.9", Arp: targetArp, MACs: learnedOn("xe-0/0/3")},
	)

	start := time.Now()
	tr := runTrace(t, f, Options{QueryTimeout: 50 * time.Millisecond})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("trace took %v, query timeout not applied", elapsed)
	}
	if len(tr.Hops) != 1 {
		t.Fatalf("len(Hops) = %d, want 1 (%s: %v)", len(tr.Hops), tr.Reason, tr.Err())
	}
	hop := tr.Hops[0]
	if hop.Resolved() {
		t.Error("primary resolved despite timing out")
	}
	if len(hop.Notes) == 0 {
		t.Error("timeout not noted on the primary record")
	}
	if hop.Peer == nil || !hop.Peer.Resolved() {
		t.Errorf("peer = %+v, want resolved", hop.Peer)
	}
}

func TestTracer_CounterFailureDoesNotStopTrace(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("xe-0/0/1"),
			Neighbors: map[string]string{"xe-0/0/1": "10.0.0.2"},
			Fail:      map[string]error{testutil.QueryCounters: errors.New("rpc error")},
		},
		&testutil.FakeDevice{Address: "10.0.0.2", MACs: learnedOn("xe-0/0/2")},
	)

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonEndOfPath || len(tr.Hops) != 2 {
		t.Fatalf("Reason = %s, hops = %d, want EndOfPath after 2", tr.Reason, len(tr.Hops))
	}
	if got := tr.Hops[0].Counters[0].Error; got != "rpc error" {
		t.Errorf("snapshot Error = %q, want %q", got, "rpc error")
	}
}

func TestTracer_AggregateWithoutMembers(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("ae5"),
	})

	tr := runTrace(t, f, Options{})

	if tr.Reason != ReasonTargetUnreachable {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonTargetUnreachable)
	}
	if len(tr.Hops) != 0 {
		t.Errorf("len(Hops) = %d, want 0", len(tr.Hops))
	}
}

func TestTracer_Canceled(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("xe-0/0/1")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(f, device.Credentials{}, Options{}).Run(ctx, "10.0.0.1", targetIP)

	if tr.Reason != ReasonCanceled {
		t.Errorf("Reason = %s, want %s", tr.Reason, ReasonCanceled)
	}
	if !errors.Is(tr.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", tr.Err())
	}
	if len(f.Opened()) != 0 {
		t.Errorf("opened %v after cancellation", f.Opened())
	}
}

func TestTracer_OnHop(t *testing.T) {
	f := testutil.NewFabric(
		&testutil.FakeDevice{
			Address: "10.0.0.1", Arp: targetArp, MACs: learnedOn("xe-0/0/1"),
			Neighbors: map[string]string{"xe-0/0/1": "10.0.0.2"},
		},
		&testutil.FakeDevice{Address: "10.0.0.2", MACs: learnedOn("xe-0/0/2")},
	)
	var seen []int
	tr := runTrace(t, f, Options{OnHop: func(h HopRecord) { seen = append(seen, h.Index) }})

	if diff := cmp.Diff([]int{0, 1}, seen); diff != "" {
		t.Errorf("OnHop calls mismatch (-want +got):\n%s", diff)
	}
	if !tr.Finished.After(tr.Started) && !tr.Finished.Equal(tr.Started) {
		t.Errorf("Finished %v before Started %v", tr.Finished, tr.Started)
	}
}
