package trace

import (
	"context"
	"strings"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Field sets per interface class, in report order.
var (
	inputPhysicalFields = []string{
		device.CounterInputErrors,
		device.CounterInputDrops,
		device.CounterFramingErrors,
		device.CounterInputRunts,
		device.CounterInputDiscards,
		device.CounterInputL3Incompletes,
		device.CounterInputL2ChannelErrs,
		device.CounterInputL2MismatchTOs,
		device.CounterInputFIFOErrors,
		device.CounterInputResourceErrors,
	}
	inputAggregateFields = []string{
		device.CounterInputErrors,
		device.CounterInputDrops,
		device.CounterFramingErrors,
		device.CounterInputRunts,
		device.CounterInputGiants,
		device.CounterInputDiscards,
		device.CounterInputResourceErrors,
	}
	outputPhysicalFields = []string{
		device.CounterCarrierTransitions,
		device.CounterOutputErrors,
		device.CounterOutputCollisions,
		device.CounterOutputDrops,
		device.CounterAgedPackets,
		device.CounterMTUErrors,
		device.CounterHSLinkCRCErrors,
		device.CounterOutputFIFOErrors,
		device.CounterOutputResourceErrors,
	}
	outputAggregateFields = []string{
		device.CounterCarrierTransitions,
		device.CounterOutputErrors,
		device.CounterOutputDrops,
		device.CounterMTUErrors,
		device.CounterOutputResourceErrors,
	}
	pcsFields = []string{
		device.CounterPCSBitErrorSeconds,
		device.CounterPCSErroredBlockSeconds,
	}
	fecFields = []string{
		device.CounterFECCorrectableRate,
		device.CounterFECUncorrectableRate,
	}
	macFields = []string{
		device.CounterMACInputCRCErrors,
		device.CounterMACOutputCRCErrors,
		device.CounterMACInputFIFOErrors,
		device.CounterMACOutputFIFOErrors,
	}
)

// Collector takes counter snapshots.
type Collector struct {
	timeout time.Duration
	now     func() time.Time
}

// NewCollector creates a Collector bounding each query by timeout.
func NewCollector(timeout time.Duration) *Collector {
	return &Collector{timeout: timeout, now: time.Now}
}

// Snapshot queries the counters of ref once. It never fails: fields the
// device does not report are unknown, and a failed query yields a snapshot
// with every field unknown and Error set.
func (c *Collector) Snapshot(ctx context.Context, s device.Session, ref InterfaceRef) CounterSnapshot {
	qctx, cancel := bounded(ctx, c.timeout)
	defer cancel()

	raw, err := s.InterfaceCounters(qctx, ref.Name)
	snap := CounterSnapshot{
		Interface: ref.Name,
		Class:     ref.Class,
		Taken:     c.now(),
	}
	var fields map[string]string
	if err != nil {
		util.WithDevice(s.Address()).Warnf("Counter query for %s failed: %v", ref.Name, err)
		snap.Error = err.Error()
	} else {
		fields = raw.Fields
	}

	if ref.IsAggregate() {
		snap.Input = pick(fields, inputAggregateFields)
		snap.Output = pick(fields, outputAggregateFields)
	} else {
		snap.Input = pick(fields, inputPhysicalFields)
		snap.Output = pick(fields, outputPhysicalFields)
		snap.Physical = &PhysicalStats{
			PCS: pick(fields, pcsFields),
			FEC: pick(fields, fecFields),
			MAC: pick(fields, macFields),
		}
	}

	if raw != nil {
		for _, q := range raw.Queues {
			snap.Queues = append(snap.Queues, QueueDrops{
				ForwardingClass: q.ForwardingClass,
				Drops:           counter("drops", q.Drops, q.Drops != ""),
			})
		}
	}

	if unknown := snap.Unknown(); len(unknown) > 0 && err == nil {
		util.WithDevice(s.Address()).Debugf("%s: %d counters not reported", ref.Name, len(unknown))
	}
	return snap
}

// pick builds the named counters from fields; a nil map makes all unknown.
func pick(fields map[string]string, keys []string) []Counter {
	out := make([]Counter, len(keys))
	for i, k := range keys {
		v, ok := fields[k]
		out[i] = counter(fieldName(k), v, ok && v != "")
	}
	return out
}

func counter(name, raw string, known bool) Counter {
	if !known {
		return Counter{Name: name}
	}
	return Counter{Name: name, Raw: strings.TrimSpace(raw), Known: true}
}

// fieldName returns the part of a "<group>/<field>" key after the slash.
func fieldName(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
