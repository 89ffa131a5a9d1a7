package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// Expander turns an aggregate into its physical members.
type Expander struct {
	timeout time.Duration
}

// NewExpander creates an Expander bounding each query by timeout.
func NewExpander(timeout time.Duration) *Expander {
	return &Expander{timeout: timeout}
}

// Expand returns [ref] for a physical interface and the members of an
// aggregate in device order. An aggregate with no members is a lookup error.
func (e *Expander) Expand(ctx context.Context, s device.Session, ref InterfaceRef) ([]InterfaceRef, error) {
	if !ref.IsAggregate() {
		return []InterfaceRef{{Name: ref.Name, Class: ClassPhysical}}, nil
	}

	qctx, cancel := bounded(ctx, e.timeout)
	defer cancel()

	names, err := s.AggregateMembers(qctx, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("querying members of %s on %s: %w", ref.Name, s.Name(), err)
	}
	if len(names) == 0 {
		return nil, util.NewLookupError(s.Name(), "aggregate-members", ref.Name)
	}

	members := make([]InterfaceRef, len(names))
	for i, n := range names {
		members[i] = InterfaceRef{Name: n, Class: ClassPhysical}
	}
	return members, nil
}
