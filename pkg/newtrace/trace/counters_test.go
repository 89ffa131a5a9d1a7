package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/newtrace/internal/testutil"
	"github.com/newtron-network/newtrace/pkg/newtrace/device"
)

func counterNames(cs []Counter) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func TestCollector_Snapshot_Physical(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address:  "10.0.0.1",
		Counters: map[string]*device.RawCounters{"et-0/0/1": testutil.FullCounters("7")},
	})
	s := openFake(t, f, "10.0.0.1")
	c := NewCollector(time.Second)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snap := c.Snapshot(context.Background(), s, InterfaceRef{Name: "et-0/0/1", Class: ClassPhysical})

	if snap.Interface != "et-0/0/1" || snap.Class != ClassPhysical {
		t.Errorf("snapshot of %s/%s, want et-0/0/1/physical", snap.Interface, snap.Class)
	}
	if !snap.Taken.Equal(fixed) {
		t.Errorf("Taken = %v, want %v", snap.Taken, fixed)
	}
	if snap.Error != "" {
		t.Errorf("Error = %q, want empty", snap.Error)
	}

	wantInput := []string{
		"input-errors", "input-drops", "framing-errors", "input-runts",
		"input-discards", "input-l3-incompletes", "input-l2-channel-errors",
		"input-l2-mismatch-timeouts", "input-fifo-errors", "input-resource-errors",
	}
	if diff := cmp.Diff(wantInput, counterNames(snap.Input)); diff != "" {
		t.Errorf("input fields mismatch (-want +got):\n%s", diff)
	}
	wantOutput := []string{
		"carrier-transitions", "output-errors", "output-collisions", "output-drops",
		"aged-packets", "mtu-errors", "hs-link-crc-errors", "output-fifo-errors",
		"output-resource-errors",
	}
	if diff := cmp.Diff(wantOutput, counterNames(snap.Output)); diff != "" {
		t.Errorf("output fields mismatch (-want +got):\n%s", diff)
	}

	if snap.Physical == nil {
		t.Fatal("Physical = nil for a physical interface")
	}
	if diff := cmp.Diff([]string{"bit-error-seconds", "errored-blocks-seconds"}, counterNames(snap.Physical.PCS)); diff != "" {
		t.Errorf("PCS fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"fec_ccw_error_rate", "fec_nccw_error_rate"}, counterNames(snap.Physical.FEC)); diff != "" {
		t.Errorf("FEC fields mismatch (-want +got):\n%s", diff)
	}
	if len(snap.Physical.MAC) != 4 {
		t.Errorf("MAC fields = %d, want 4", len(snap.Physical.MAC))
	}

	if unknown := snap.Unknown(); len(unknown) != 0 {
		t.Errorf("Unknown() = %v, want none", unknown)
	}
	if v, ok := snap.Input[0].Value(); !ok || v != 7 {
		t.Errorf("input-errors = %d (ok=%v), want 7", v, ok)
	}

	wantQueues := []QueueDrops{
		{ForwardingClass: "best-effort", Drops: Counter{Name: "drops", Raw: "7", Known: true}},
		{ForwardingClass: "network-control", Drops: Counter{Name: "drops", Raw: "0", Known: true}},
	}
	if diff := cmp.Diff(wantQueues, snap.Queues); diff != "" {
		t.Errorf("queues mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_Snapshot_Aggregate(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address:  "10.0.0.1",
		Counters: map[string]*device.RawCounters{"ae0": testutil.FullCounters("1")},
	})
	s := openFake(t, f, "10.0.0.1")

	snap := NewCollector(time.Second).Snapshot(context.Background(), s, InterfaceRef{Name: "ae0", Class: ClassAggregate})

	if snap.Physical != nil {
		t.Errorf("Physical = %+v, want nil for an aggregate", snap.Physical)
	}
	wantInput := []string{
		"input-errors", "input-drops", "framing-errors", "input-runts",
		"input-giants", "input-discards", "input-resource-errors",
	}
	if diff := cmp.Diff(wantInput, counterNames(snap.Input)); diff != "" {
		t.Errorf("input fields mismatch (-want +got):\n%s", diff)
	}
	wantOutput := []string{"carrier-transitions", "output-errors", "output-drops", "mtu-errors", "output-resource-errors"}
	if diff := cmp.Diff(wantOutput, counterNames(snap.Output)); diff != "" {
		t.Errorf("output fields mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_Snapshot_MissingFields(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address: "10.0.0.1",
		Counters: map[string]*device.RawCounters{
			"et-0/0/1": {
				Fields: map[string]string{
					device.CounterInputErrors: "3",
					device.CounterInputDrops:  "",
				},
				Queues: []device.RawQueue{{ForwardingClass: "best-effort"}},
			},
		},
	})
	s := openFake(t, f, "10.0.0.1")

	snap := NewCollector(time.Second).Snapshot(context.Background(), s, InterfaceRef{Name: "et-0/0/1", Class: ClassPhysical})

	if got := snap.Input[0].String(); got != "3" {
		t.Errorf("input-errors = %q, want %q", got, "3")
	}
	if got := snap.Input[1].String(); got != "unknown" {
		t.Errorf("empty input-drops = %q, want %q", got, "unknown")
	}
	if _, ok := snap.Input[1].Value(); ok {
		t.Error("unknown counter reported a value")
	}
	if got := snap.Physical.FEC[0].String(); got != "unknown" {
		t.Errorf("absent FEC = %q, want %q", got, "unknown")
	}
	if snap.Queues[0].Drops.Known {
		t.Error("queue without drops reported as known")
	}
	if snap.Error != "" {
		t.Errorf("partial data set Error = %q", snap.Error)
	}

	unknown := snap.Unknown()
	// 10 input + 9 output + 8 physical fields, one known, plus the queue.
	if len(unknown) != 27 {
		t.Errorf("Unknown() has %d entries, want 27: %v", len(unknown), unknown)
	}
}

func TestCollector_Snapshot_QueryFailure(t *testing.T) {
	f := testutil.NewFabric(&testutil.FakeDevice{
		Address: "10.0.0.1",
		Fail:    map[string]error{testutil.QueryCounters: errors.New("rpc timeout")},
	})
	s := openFake(t, f, "10.0.0.1")

	snap := NewCollector(time.Second).Snapshot(context.Background(), s, InterfaceRef{Name: "et-0/0/1", Class: ClassPhysical})

	if snap.Error != "rpc timeout" {
		t.Errorf("Error = %q, want %q", snap.Error, "rpc timeout")
	}
	for _, c := range append(snap.Input, snap.Output...) {
		if c.Known {
			t.Errorf("%s known after a failed query", c.Name)
		}
	}
	if snap.Physical == nil || len(snap.Physical.PCS) != 2 {
		t.Errorf("physical groups missing after a failed query: %+v", snap.Physical)
	}
}

func TestCounter_Value(t *testing.T) {
	tests := []struct {
		c      Counter
		want   uint64
		wantOK bool
	}{
		{Counter{Name: "x", Raw: "42", Known: true}, 42, true},
		{Counter{Name: "x", Raw: "1.5e-08", Known: true}, 0, false},
		{Counter{Name: "x"}, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.c.Value()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%+v.Value() = %d, %v, want %d, %v", tt.c, got, ok, tt.want, tt.wantOK)
		}
	}
}
