package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Identity is what a hop is asked to resolve. HardwareAddress is empty until
// the first hop has resolved it from ARP.
type Identity struct {
	IP              string
	HardwareAddress HardwareAddress
}

// Side is the resolution result of one member of a redundancy pair.
type Side struct {
	Address string
	// Session is nil when the device could not be opened.
	Session         device.Session
	HardwareAddress HardwareAddress
	Interface       *InterfaceRef
	// Err explains why Interface is nil.
	Err error
}

// Resolved reports whether the side found the target on an interface.
func (s *Side) Resolved() bool { return s != nil && s.Interface != nil }

// Reconciliation joins the primary and (optional) peer resolutions of one
// hop.
type Reconciliation struct {
	Local Side
	Peer  *Side
}

// Sides returns the local side followed by the peer side, if any.
func (r *Reconciliation) Sides() []*Side {
	if r.Peer == nil {
		return []*Side{&r.Local}
	}
	return []*Side{&r.Local, r.Peer}
}

// HardwareAddress returns the address resolved by the first side that found
// the target, the primary preferred.
func (r *Reconciliation) HardwareAddress() HardwareAddress {
	for _, s := range r.Sides() {
		if s.Resolved() && !s.HardwareAddress.IsZero() {
			return s.HardwareAddress
		}
	}
	return ""
}

// Reconciler resolves a target on both members of a redundancy pair.
type Reconciler struct {
	dialer   device.Dialer
	creds    device.Credentials
	resolver *Resolver
	timeout  time.Duration
	connect  time.Duration
}

// NewReconciler creates a Reconciler that opens peer sessions with dialer.
func NewReconciler(dialer device.Dialer, creds device.Credentials, resolver *Resolver, queryTimeout, connectTimeout time.Duration) *Reconciler {
	return &Reconciler{
		dialer:   dialer,
		creds:    creds,
		resolver: resolver,
		timeout:  queryTimeout,
		connect:  connectTimeout,
	}
}

// PeerAddress returns the redundancy peer of s, or "" when it has none. A
// failing query counts as no peer.
func (r *Reconciler) PeerAddress(ctx context.Context, s device.Session) string {
	qctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	peer, err := s.RedundancyPeerAddress(qctx)
	if err != nil {
		util.WithDevice(s.Address()).Warnf("Redundancy peer query failed, continuing without peer: %v", err)
		return ""
	}
	if peer != "" && util.SameIP(peer, s.Address()) {
		return ""
	}
	return peer
}

// Reconcile resolves id on primary and, concurrently, on its redundancy peer.
// When the hardware address is not yet known, both sides first try ARP and
// the primary's answer is preferred; the chosen address is then looked up
// in the switching table of every opened side, so a peer without its own
// ARP entry is still checked. The returned Reconciliation is always non-nil
// so the caller can release the peer session; the error is
// ErrTargetUnreachable when neither side resolved the target.
func (r *Reconciler) Reconcile(ctx context.Context, primary device.Session, id Identity) (*Reconciliation, error) {
	rec := &Reconciliation{Local: Side{Address: primary.Address(), Session: primary}}

	peerAddr := r.PeerAddress(ctx, primary)
	if peerAddr != "" {
		rec.Peer = &Side{Address: peerAddr}
	}

	// ARP, and opening the peer, run concurrently on both sides.
	r.each(rec, func(side *Side) {
		if side == rec.Peer {
			r.openPeer(ctx, side)
			if side.Session == nil {
				return
			}
		}
		if id.HardwareAddress.IsZero() {
			r.arp(ctx, side, id.IP)
		}
	})

	hw := id.HardwareAddress
	if hw.IsZero() {
		hw = r.pick(rec)
	}
	if hw.IsZero() {
		return rec, unreachable(rec, id)
	}

	r.each(rec, func(side *Side) {
		if side.Session != nil {
			r.confirm(ctx, side, hw)
		}
	})

	for _, s := range rec.Sides() {
		if s.Resolved() {
			return rec, nil
		}
	}
	return rec, unreachable(rec, id)
}

// each runs fn on every side concurrently and waits for all of them.
func (r *Reconciler) each(rec *Reconciliation, fn func(*Side)) {
	var wg sync.WaitGroup
	for _, side := range rec.Sides() {
		wg.Add(1)
		go func(side *Side) {
			defer wg.Done()
			fn(side)
		}(side)
	}
	wg.Wait()
}

// pick returns the ARP answer of the primary, else of the peer.
func (r *Reconciler) pick(rec *Reconciliation) HardwareAddress {
	local := rec.Local.HardwareAddress
	if rec.Peer != nil && !rec.Peer.HardwareAddress.IsZero() {
		if local.IsZero() {
			return rec.Peer.HardwareAddress
		}
		if local != rec.Peer.HardwareAddress {
			util.WithDevice(rec.Peer.Address).Warnf("ARP answer %s differs from %s on %s, using the latter",
				rec.Peer.HardwareAddress, local, rec.Local.Address)
		}
	}
	return local
}

func unreachable(rec *Reconciliation, id Identity) error {
	cause := rec.Local.Err
	if rec.Peer != nil && rec.Peer.Err != nil {
		cause = fmt.Errorf("%v; peer %s: %v", cause, rec.Peer.Address, rec.Peer.Err)
	}
	return fmt.Errorf("%w: %s: %v", util.ErrTargetUnreachable, id.IP, cause)
}

func (r *Reconciler) openPeer(ctx context.Context, side *Side) {
	cctx, cancel := bounded(ctx, r.connect)
	defer cancel()

	sess, err := r.dialer.Open(cctx, side.Address, r.creds)
	if err != nil {
		util.WithDevice(side.Address).Warnf("Cannot open redundancy peer: %v", err)
		side.Err = err
		return
	}
	side.Session = sess
}

func (r *Reconciler) arp(ctx context.Context, side *Side, ip string) {
	hw, err := r.resolver.ResolveHardwareAddressFromIP(ctx, side.Session, ip)
	if err != nil {
		util.WithDevice(side.Address).Debugf("ARP resolution of %s failed: %v", ip, err)
		side.Err = err
		return
	}
	side.HardwareAddress = hw
}

// confirm looks hw up in the switching table of side. A side whose own ARP
// lookup failed gets that error replaced by the outcome of this lookup.
func (r *Reconciler) confirm(ctx context.Context, side *Side, hw HardwareAddress) {
	side.HardwareAddress = hw
	side.Err = nil

	ref, err := r.resolver.ConfirmReachable(ctx, side.Session, hw)
	if err != nil {
		util.WithDevice(side.Address).Debugf("%s not in switching table: %v", hw, err)
		side.Err = err
		return
	}
	side.Interface = &ref
}
