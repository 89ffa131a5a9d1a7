// Package device provides the NOS-independent query interface the tracer
// consumes. The SONiC-specific implementation lives in the device/sonic
// sub-package; tests use the in-memory fabric in internal/testutil.
package device

import "context"

// Credentials authenticate a management session.
type Credentials struct {
	User     string
	Password string
	Port     int // SSH port, 0 means 22
}

// Dialer opens sessions to devices by management address.
type Dialer interface {
	// Open returns a ready session or a *util.ConnectionError.
	Open(ctx context.Context, address string, creds Credentials) (Session, error)
}

// Session is one open management session to a network element. A session is
// used by exactly one goroutine at a time.
type Session interface {
	// Address returns the management address the session was opened to.
	Address() string
	// Name returns the device hostname, or the address if unknown.
	Name() string
	// Close releases the session. Idempotent; errors are logged, not returned
	// to the trace.
	Close() error

	ArpTable(ctx context.Context) ([]ArpEntry, error)
	MACTable(ctx context.Context) ([]MACEntry, error)
	// AggregateMembers returns member interface names in device order. An
	// unknown aggregate returns an empty list, not an error.
	AggregateMembers(ctx context.Context, aggregate string) ([]string, error)
	// RedundancyPeerAddress returns the out-of-band address of the
	// inter-chassis redundancy peer, or "" when the device has none.
	RedundancyPeerAddress(ctx context.Context) (string, error)
	// NeighborManagementAddress returns the LLDP remote management address
	// seen on iface, or "" when no neighbor is known.
	NeighborManagementAddress(ctx context.Context, iface string) (string, error)
	InterfaceCounters(ctx context.Context, iface string) (*RawCounters, error)
}

// ArpEntry is one IP-to-hardware-address binding.
type ArpEntry struct {
	IP        string // "10.0.0.5"
	MAC       string // as reported by the device
	Interface string // "Vlan100", "irb.100"
}

// MACEntry is one learned hardware address in the switching table.
type MACEntry struct {
	MAC       string // as reported by the device
	Interface string // "ae0.100", "PortChannel0001", "Ethernet8"
	VLAN      string
}

// RawCounters is the unparsed result of an extensive interface-statistics
// query. Fields is keyed by the Counter* constants; a key absent from the map
// means the device did not report it.
type RawCounters struct {
	Fields map[string]string
	Queues []RawQueue // in reported order
}

// RawQueue is the drop counter of one egress queue.
type RawQueue struct {
	ForwardingClass string // "best-effort", "UC3"
	Drops           string // "" when not reported
}

// Counter field keys, "<group>/<field>".
const (
	CounterInputErrors         = "input-error-list/input-errors"
	CounterInputDrops          = "input-error-list/input-drops"
	CounterFramingErrors       = "input-error-list/framing-errors"
	CounterInputRunts          = "input-error-list/input-runts"
	CounterInputGiants         = "input-error-list/input-giants"
	CounterInputDiscards       = "input-error-list/input-discards"
	CounterInputL3Incompletes  = "input-error-list/input-l3-incompletes"
	CounterInputL2ChannelErrs  = "input-error-list/input-l2-channel-errors"
	CounterInputL2MismatchTOs  = "input-error-list/input-l2-mismatch-timeouts"
	CounterInputFIFOErrors     = "input-error-list/input-fifo-errors"
	CounterInputResourceErrors = "input-error-list/input-resource-errors"

	CounterCarrierTransitions   = "output-error-list/carrier-transitions"
	CounterOutputErrors         = "output-error-list/output-errors"
	CounterOutputCollisions     = "output-error-list/output-collisions"
	CounterOutputDrops          = "output-error-list/output-drops"
	CounterAgedPackets          = "output-error-list/aged-packets"
	CounterMTUErrors            = "output-error-list/mtu-errors"
	CounterHSLinkCRCErrors      = "output-error-list/hs-link-crc-errors"
	CounterOutputFIFOErrors     = "output-error-list/output-fifo-errors"
	CounterOutputResourceErrors = "output-error-list/output-resource-errors"

	CounterPCSBitErrorSeconds     = "ethernet-pcs-statistics/bit-error-seconds"
	CounterPCSErroredBlockSeconds = "ethernet-pcs-statistics/errored-blocks-seconds"

	CounterFECCorrectableRate   = "ethernet-fec-statistics/fec_ccw_error_rate"
	CounterFECUncorrectableRate = "ethernet-fec-statistics/fec_nccw_error_rate"

	CounterMACInputCRCErrors   = "ethernet-mac-statistics/input-crc-errors"
	CounterMACOutputCRCErrors  = "ethernet-mac-statistics/output-crc-errors"
	CounterMACInputFIFOErrors  = "ethernet-mac-statistics/input-fifo-errors"
	CounterMACOutputFIFOErrors = "ethernet-mac-statistics/output-fifo-errors"
)
