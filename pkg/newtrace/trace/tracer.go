package trace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultQueryTimeout   = 10 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxHops        = 32
)

// Options tune a Tracer.
type Options struct {
	// QueryTimeout bounds every individual device query.
	QueryTimeout time.Duration
	// ConnectTimeout bounds opening a session.
	ConnectTimeout time.Duration
	// MaxHops is the maximum number of recorded hops.
	MaxHops int
	// AggregatePrefixes are the aggregate interface naming conventions.
	AggregatePrefixes []string
	// DisableLoopGuard allows revisiting a device; MaxHops still applies.
	DisableLoopGuard bool
	// OnHop, if set, is called with every hop as soon as it is recorded.
	OnHop func(HopRecord)
}

// Tracer runs traces. A Tracer is safe for sequential reuse; each Run owns
// its own sessions.
type Tracer struct {
	dialer device.Dialer
	creds  device.Credentials
	opts   Options

	resolver   *Resolver
	reconciler *Reconciler
	expander   *Expander
	collector  *Collector
	advancer   *Advancer

	now func() time.Time
}

// New creates a Tracer that opens sessions with dialer using creds.
func New(dialer device.Dialer, creds device.Credentials, opts Options) *Tracer {
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}

	resolver := NewResolver(opts.QueryTimeout, opts.AggregatePrefixes)
	return &Tracer{
		dialer:     dialer,
		creds:      creds,
		opts:       opts,
		resolver:   resolver,
		reconciler: NewReconciler(dialer, creds, resolver, opts.QueryTimeout, opts.ConnectTimeout),
		expander:   NewExpander(opts.QueryTimeout),
		collector:  NewCollector(opts.QueryTimeout),
		advancer:   NewAdvancer(opts.QueryTimeout),
		now:        time.Now,
	}
}

type state int

const (
	stateStart state = iota
	stateResolvingHop
	stateRecordingHop
	stateAdvancing
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "Start"
	case stateResolvingHop:
		return "ResolvingHop"
	case stateRecordingHop:
		return "RecordingHop"
	case stateAdvancing:
		return "Advancing"
	case stateTerminated:
		return "Terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// run is the mutable state of one trace. Only the Run goroutine touches it.
type run struct {
	t       *Tracer
	trace   *Trace
	id      Identity
	current device.Session
	rec     *Reconciliation
	hop     *HopRecord
	visited map[string]bool
}

// Run traces the path from the device at start towards targetIP. It always
// returns a Trace; Reason says why it stopped and Err carries the cause of
// an abnormal stop.
func (t *Tracer) Run(ctx context.Context, start, targetIP string) *Trace {
	r := &run{
		t: t,
		trace: &Trace{
			Start:   start,
			Target:  targetIP,
			Hops:    []HopRecord{},
			Started: t.now(),
		},
		id:      Identity{IP: targetIP},
		visited: make(map[string]bool),
	}
	defer r.closeSessions()

	st := stateStart
	for st != stateTerminated {
		if err := ctx.Err(); err != nil {
			st = r.terminate(ReasonCanceled, fmt.Errorf("trace canceled: %w", err))
			break
		}
		util.Logger.Debugf("Trace %s: %s (hop %d)", targetIP, st, len(r.trace.Hops))
		switch st {
		case stateStart:
			st = r.start(ctx, start)
		case stateResolvingHop:
			st = r.resolveHop(ctx)
		case stateRecordingHop:
			st = r.recordHop()
		case stateAdvancing:
			st = r.advance(ctx)
		}
	}

	r.trace.Finished = t.now()
	return r.trace
}

func (r *run) start(ctx context.Context, addr string) state {
	sess, err := r.open(ctx, addr)
	if err != nil {
		return r.fail(ctx, ReasonConnectionError, err)
	}
	r.current = sess
	r.visit(addr)
	return stateResolvingHop
}

func (r *run) resolveHop(ctx context.Context) state {
	index := len(r.trace.Hops)

	rec, err := r.t.reconciler.Reconcile(ctx, r.current, r.id)
	r.rec = rec
	if rec.Peer != nil {
		r.visit(rec.Peer.Address)
	}
	if err != nil {
		return r.fail(ctx, ReasonTargetUnreachable, err)
	}

	if r.id.HardwareAddress.IsZero() {
		r.id.HardwareAddress = rec.HardwareAddress()
		r.trace.HardwareAddress = r.id.HardwareAddress
		util.Logger.Infof("Resolved %s to %s", r.id.IP, r.id.HardwareAddress)
	}

	sides := rec.Sides()
	records := make([]*HopRecord, len(sides))
	var wg sync.WaitGroup
	for i, side := range sides {
		wg.Add(1)
		go func(i int, side *Side) {
			defer wg.Done()
			records[i] = r.t.collect(ctx, index, side)
		}(i, side)
	}
	wg.Wait()

	hop := records[0]
	if len(records) > 1 {
		hop.Peer = records[1]
	}
	if !hop.Resolved() && (hop.Peer == nil || !hop.Peer.Resolved()) {
		return r.fail(ctx, ReasonTargetUnreachable,
			fmt.Errorf("%w: no interface towards %s could be expanded on %s", util.ErrTargetUnreachable, r.id.IP, hop.Device))
	}
	r.hop = hop
	return stateRecordingHop
}

func (r *run) recordHop() state {
	r.trace.Hops = append(r.trace.Hops, *r.hop)

	for _, side := range r.hop.Sides() {
		log := util.WithHop(r.hop.Index, side.Device.Address)
		if side.Resolved() {
			log.Infof("%s reaches %s via %s (next hop %q)", side.Device, r.id.HardwareAddress, side.Interface.Name, side.NextHop)
		} else {
			log.Infof("%s does not carry %s", side.Device, r.id.HardwareAddress)
		}
	}
	if r.t.opts.OnHop != nil {
		r.t.opts.OnHop(*r.hop)
	}
	return stateAdvancing
}

func (r *run) advance(ctx context.Context) state {
	hop := r.hop
	r.closeSessions()

	// The peer's next hop takes precedence over the primary's.
	var candidates []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		for _, c := range candidates {
			if util.SameIP(c, addr) {
				return
			}
		}
		candidates = append(candidates, addr)
	}
	if hop.Peer != nil {
		add(hop.Peer.NextHop)
	}
	add(hop.NextHop)

	if len(candidates) == 0 {
		return r.terminate(ReasonEndOfPath, nil)
	}
	if len(r.trace.Hops) >= r.t.opts.MaxHops {
		return r.terminate(ReasonHopLimit,
			fmt.Errorf("%w: stopped after %d hops, next would be %s", util.ErrHopLimit, len(r.trace.Hops), candidates[0]))
	}

	fresh := candidates
	if !r.t.opts.DisableLoopGuard {
		fresh = nil
		for _, c := range candidates {
			if !r.visited[addrKey(c)] {
				fresh = append(fresh, c)
			}
		}
		if len(fresh) == 0 {
			return r.terminate(ReasonLoopDetected,
				fmt.Errorf("%w: %s was already traced", util.ErrLoopDetected, candidates[0]))
		}
	}

	var lastErr error
	for _, addr := range fresh {
		sess, err := r.open(ctx, addr)
		if err != nil {
			util.WithHop(hop.Index+1, addr).Warnf("Cannot open next hop: %v", err)
			lastErr = err
			continue
		}
		r.current = sess
		r.visit(addr)
		r.rec, r.hop = nil, nil
		return stateResolvingHop
	}
	return r.fail(ctx, ReasonConnectionError, lastErr)
}

// collect expands, snapshots and advances one resolved side. A side whose
// interface cannot be expanded is reported as unresolved.
func (t *Tracer) collect(ctx context.Context, index int, side *Side) *HopRecord {
	rec := &HopRecord{
		Index:  index,
		Device: DeviceIdentity{Address: side.Address, Name: side.Address},
	}
	if side.Session != nil {
		rec.Device.Name = side.Session.Name()
	}
	if side.Err != nil {
		rec.Notes = append(rec.Notes, side.Err.Error())
	}
	if !side.Resolved() {
		return rec
	}

	members, err := t.expander.Expand(ctx, side.Session, *side.Interface)
	if err != nil {
		util.WithHop(index, side.Address).Warnf("Cannot expand %s: %v", side.Interface.Name, err)
		rec.Notes = append(rec.Notes, err.Error())
		return rec
	}

	ref := InterfaceRef{Name: side.Interface.Name, Class: side.Interface.Class}
	if ref.IsAggregate() {
		snap := t.collector.Snapshot(ctx, side.Session, ref)
		rec.Aggregate = &snap
		ref.Members = members
	}
	for _, m := range members {
		rec.Counters = append(rec.Counters, t.collector.Snapshot(ctx, side.Session, m))
	}
	rec.NextHop = t.advancer.NextHopAddress(ctx, side.Session, members)
	rec.Interface = &ref
	return rec
}

func (r *run) open(ctx context.Context, addr string) (device.Session, error) {
	cctx, cancel := bounded(ctx, r.t.opts.ConnectTimeout)
	defer cancel()

	sess, err := r.t.dialer.Open(cctx, addr, r.t.creds)
	if err != nil {
		if !errors.Is(err, util.ErrConnection) {
			err = util.NewConnectionError(addr, err)
		}
		return nil, err
	}
	util.WithDevice(addr).Infof("Connected to device %s", sess.Name())
	return sess, nil
}

// fail terminates with reason, or with ReasonCanceled if the failure was
// caused by ctx ending.
func (r *run) fail(ctx context.Context, reason Reason, err error) state {
	if ctx.Err() != nil {
		return r.terminate(ReasonCanceled, fmt.Errorf("trace canceled: %w", errors.Join(ctx.Err(), err)))
	}
	return r.terminate(reason, err)
}

func (r *run) terminate(reason Reason, err error) state {
	r.trace.Reason = reason
	r.trace.err = err
	if err != nil {
		r.trace.Error = err.Error()
		util.Logger.Warnf("Trace to %s ended (%s): %v", r.id.IP, reason, err)
	} else {
		util.Logger.Infof("Trace to %s ended (%s) after %d hops", r.id.IP, reason, len(r.trace.Hops))
	}
	return stateTerminated
}

func (r *run) visit(addr string) { r.visited[addrKey(addr)] = true }

// closeSessions releases the sessions of the current hop.
func (r *run) closeSessions() {
	if r.rec != nil && r.rec.Peer != nil && r.rec.Peer.Session != nil {
		closeSession(r.rec.Peer.Session)
		r.rec.Peer.Session = nil
	}
	if r.current != nil {
		closeSession(r.current)
		r.current = nil
	}
}

func closeSession(s device.Session) {
	if err := s.Close(); err != nil {
		util.WithDevice(s.Address()).Debugf("Close: %v", err)
	}
}

// addrKey normalizes an address for the visited set.
func addrKey(addr string) string {
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
