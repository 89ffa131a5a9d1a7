// Package trace walks the physical path from a management entry point to a
// target endpoint, one device (or redundant device pair) per hop, and
// snapshots the error counters of every interface on the way.
package trace

import (
	"fmt"
	"strconv"
	"time"

	"github.com/newtron-network/newtrace/pkg/util"
)

// HardwareAddress is a 48-bit link-layer address in canonical lower-case
// colon form. The zero value means "not resolved yet".
type HardwareAddress string

// ParseHardwareAddress accepts colon, hyphen and dotted notations.
func ParseHardwareAddress(s string) (HardwareAddress, error) {
	mac, ok := util.NormalizeMAC(s)
	if !ok {
		return "", fmt.Errorf("invalid hardware address %q", s)
	}
	return HardwareAddress(mac), nil
}

func (h HardwareAddress) String() string { return string(h) }

// IsZero reports whether the address is still unresolved.
func (h HardwareAddress) IsZero() bool { return h == "" }

// InterfaceClass distinguishes physical ports from link aggregates.
type InterfaceClass string

const (
	ClassPhysical  InterfaceClass = "physical"
	ClassAggregate InterfaceClass = "aggregate"
)

// InterfaceRef names an interface on a device. Members is populated by the
// Expander for aggregates and is always empty for physical interfaces.
type InterfaceRef struct {
	Name    string         `json:"name"`
	Class   InterfaceClass `json:"class"`
	Members []InterfaceRef `json:"members,omitempty"`
}

// IsAggregate reports whether the interface is a link aggregate.
func (r InterfaceRef) IsAggregate() bool { return r.Class == ClassAggregate }

func (r InterfaceRef) String() string { return r.Name }

// Counter is one named value of a CounterSnapshot. Known is false when the
// device did not report the field; such a counter renders as "unknown" and
// is never treated as zero.
type Counter struct {
	Name  string `json:"name"`
	Raw   string `json:"value,omitempty"`
	Known bool   `json:"known"`
}

// Value returns the counter as an integer. ok is false for unknown or
// non-integer values (FEC error rates, for example, may be reported in
// floating notation).
func (c Counter) Value() (v uint64, ok bool) {
	if !c.Known {
		return 0, false
	}
	v, err := strconv.ParseUint(c.Raw, 10, 64)
	return v, err == nil
}

func (c Counter) String() string {
	if !c.Known {
		return "unknown"
	}
	return c.Raw
}

// QueueDrops is the total drop count of one egress queue.
type QueueDrops struct {
	ForwardingClass string  `json:"forwarding_class"`
	Drops           Counter `json:"drops"`
}

// PhysicalStats holds the layer-1/2 statistics only physical ports expose.
type PhysicalStats struct {
	PCS []Counter `json:"pcs"`
	FEC []Counter `json:"fec"`
	MAC []Counter `json:"mac"`
}

// CounterSnapshot is an immutable record of the error counters of one
// interface at one point in time.
type CounterSnapshot struct {
	Interface string         `json:"interface"`
	Class     InterfaceClass `json:"class"`
	Taken     time.Time      `json:"taken"`
	Input     []Counter      `json:"input"`
	Output    []Counter      `json:"output"`
	Queues    []QueueDrops   `json:"queues,omitempty"`
	Physical  *PhysicalStats `json:"physical,omitempty"`
	// Error is set when the counter query itself failed; every counter is
	// then unknown.
	Error string `json:"error,omitempty"`
}

// Unknown lists the counters the device did not report.
func (s CounterSnapshot) Unknown() []string {
	var names []string
	collect := func(group string, cs []Counter) {
		for _, c := range cs {
			if !c.Known {
				names = append(names, group+"/"+c.Name)
			}
		}
	}
	collect("input", s.Input)
	collect("output", s.Output)
	for _, q := range s.Queues {
		if !q.Drops.Known {
			names = append(names, "queue/"+q.ForwardingClass)
		}
	}
	if s.Physical != nil {
		collect("pcs", s.Physical.PCS)
		collect("fec", s.Physical.FEC)
		collect("mac", s.Physical.MAC)
	}
	return names
}

// DeviceIdentity identifies the device a HopRecord was taken on.
type DeviceIdentity struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (d DeviceIdentity) String() string {
	if d.Name == "" || d.Name == d.Address {
		return d.Address
	}
	return d.Name + "(" + d.Address + ")"
}

// HopRecord is one step of a Trace. Interface is nil when this device did
// not resolve the target; a recorded hop always has Interface set on itself
// or on Peer.
type HopRecord struct {
	Index     int               `json:"index"`
	Device    DeviceIdentity    `json:"device"`
	Interface *InterfaceRef     `json:"interface,omitempty"`
	Aggregate *CounterSnapshot  `json:"aggregate_counters,omitempty"`
	Counters  []CounterSnapshot `json:"counters,omitempty"`
	NextHop   string            `json:"next_hop,omitempty"`
	Peer      *HopRecord        `json:"peer,omitempty"`
	Notes     []string          `json:"notes,omitempty"`
}

// Resolved reports whether this device (not its peer) carries the target.
func (h *HopRecord) Resolved() bool { return h.Interface != nil }

// Sides returns the record itself followed by its peer record, if any.
func (h *HopRecord) Sides() []*HopRecord {
	if h.Peer == nil {
		return []*HopRecord{h}
	}
	return []*HopRecord{h, h.Peer}
}

// Reason is why a trace stopped.
type Reason string

const (
	ReasonEndOfPath         Reason = "EndOfPath"
	ReasonTargetUnreachable Reason = "TargetUnreachable"
	ReasonConnectionError   Reason = "ConnectionError"
	ReasonLoopDetected      Reason = "LoopDetected"
	ReasonHopLimit          Reason = "HopLimit"
	ReasonCanceled          Reason = "Canceled"
)

// Trace is the ordered result of one run. Hops only ever grow by append.
type Trace struct {
	Start           string          `json:"start"`
	Target          string          `json:"target"`
	HardwareAddress HardwareAddress `json:"hardware_address,omitempty"`
	Hops            []HopRecord     `json:"hops"`
	Reason          Reason          `json:"reason"`
	Error           string          `json:"error,omitempty"`
	Started         time.Time       `json:"started"`
	Finished        time.Time       `json:"finished"`

	err error
}

// Err returns the error that ended the trace, or nil for a normal end of
// path. The error matches the util sentinels with errors.Is.
func (t *Trace) Err() error { return t.err }
