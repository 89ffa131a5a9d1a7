package trace

import (
	"context"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Advancer finds the management address of the next device from LLDP.
type Advancer struct {
	timeout time.Duration
}

// NewAdvancer creates an Advancer bounding each query by timeout.
func NewAdvancer(timeout time.Duration) *Advancer {
	return &Advancer{timeout: timeout}
}

// NextHopAddress returns the LLDP remote management address seen on the
// first of interfaces, or "" when there is none or the query fails.
//
// Only the first member of an aggregate is consulted; members cabled to
// different neighbors are not detected.
func (a *Advancer) NextHopAddress(ctx context.Context, s device.Session, interfaces []InterfaceRef) string {
	if len(interfaces) == 0 {
		return ""
	}
	iface := interfaces[0].Name

	qctx, cancel := bounded(ctx, a.timeout)
	defer cancel()

	addr, err := s.NeighborManagementAddress(qctx, iface)
	if err != nil {
		util.WithDevice(s.Address()).Warnf("Neighbor query on %s failed: %v", iface, err)
		return ""
	}
	return addr
}
