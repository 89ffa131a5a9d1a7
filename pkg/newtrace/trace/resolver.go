package trace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// DefaultAggregatePrefixes are the aggregate naming conventions of Junos
// ("ae0") and SONiC ("PortChannel0001"). A name is an aggregate only when
// the prefix is followed by a digit: "ae0" and "PortChannel1" match, while
// a bare "ae" or a name such as "aeth0" is classified physical. This is
// narrower than a plain prefix match.
var DefaultAggregatePrefixes = []string{"ae", "PortChannel"}

// bounded derives the per-query context. A zero timeout leaves only the
// caller's cancellation.
func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Resolver maps a target IP to its hardware address and a hardware address
// to the interface a device switches it on.
type Resolver struct {
	timeout  time.Duration
	prefixes []string
}

// NewResolver creates a Resolver. A nil prefixes slice selects
// DefaultAggregatePrefixes.
func NewResolver(timeout time.Duration, prefixes []string) *Resolver {
	if prefixes == nil {
		prefixes = DefaultAggregatePrefixes
	}
	return &Resolver{timeout: timeout, prefixes: prefixes}
}

// ResolveHardwareAddressFromIP looks targetIP up in the ARP table of s. It
// never consults the switching table.
func (r *Resolver) ResolveHardwareAddressFromIP(ctx context.Context, s device.Session, targetIP string) (HardwareAddress, error) {
	qctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	entries, err := s.ArpTable(qctx)
	if err != nil {
		return "", fmt.Errorf("querying ARP table of %s: %w", s.Name(), err)
	}
	for _, e := range entries {
		if !util.SameIP(e.IP, targetIP) {
			continue
		}
		hw, err := ParseHardwareAddress(e.MAC)
		if err != nil {
			util.WithDevice(s.Address()).Debugf("Skipping ARP entry %s: %v", e.IP, err)
			continue
		}
		return hw, nil
	}
	return "", util.NewLookupError(s.Name(), "arp", targetIP)
}

// ConfirmReachable finds hw in the switching table of s and returns the
// interface it was learned on, with any sub-interface unit removed.
func (r *Resolver) ConfirmReachable(ctx context.Context, s device.Session, hw HardwareAddress) (InterfaceRef, error) {
	qctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	entries, err := s.MACTable(qctx)
	if err != nil {
		return InterfaceRef{}, fmt.Errorf("querying switching table of %s: %w", s.Name(), err)
	}
	for _, e := range entries {
		mac, ok := util.NormalizeMAC(e.MAC)
		if !ok || HardwareAddress(mac) != hw {
			continue
		}
		if e.Interface == "" {
			continue
		}
		return r.Classify(e.Interface), nil
	}
	return InterfaceRef{}, util.NewLookupError(s.Name(), "mac", hw.String())
}

// IsReachable is ConfirmReachable reduced to a boolean.
func (r *Resolver) IsReachable(ctx context.Context, s device.Session, hw HardwareAddress) bool {
	_, err := r.ConfirmReachable(ctx, s, hw)
	return err == nil
}

// Classify strips the sub-interface unit from name and derives its class
// from the aggregate naming convention.
func (r *Resolver) Classify(name string) InterfaceRef {
	base, _, _ := strings.Cut(name, ".")
	class := ClassPhysical
	for _, p := range r.prefixes {
		if isAggregateName(base, p) {
			class = ClassAggregate
			break
		}
	}
	return InterfaceRef{Name: base, Class: class}
}

// isAggregateName matches prefix followed by an interface number, so that
// "ae0" is an aggregate while "aeth0" is not.
func isAggregateName(name, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(name, prefix) {
		return false
	}
	rest := name[len(prefix):]
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}
