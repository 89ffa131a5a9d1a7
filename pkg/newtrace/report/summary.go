package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/newtron-network/newtrace/pkg/cli"
	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
)

// Summary writes one table row per hop side: where the target was found,
// the input/output error totals and the next hop.
func Summary(w io.Writer, tr *trace.Trace) {
	tbl := cli.NewTableTo(w, "HOP", "DEVICE", "INTERFACE", "MEMBERS", "IN-ERR", "OUT-ERR", "UNKNOWN", "NEXT-HOP")
	for i := range tr.Hops {
		for j, side := range tr.Hops[i].Sides() {
			hop := strconv.Itoa(side.Index)
			if j > 0 {
				hop = "  peer"
			}
			if !side.Resolved() {
				tbl.Row(hop, side.Device.String(), "-", "-", "-", "-", "-", "-")
				continue
			}
			in, out, unknown := totals(side)
			tbl.Row(hop, side.Device.String(), side.Interface.Name, members(side.Interface),
				in, out, strconv.Itoa(unknown), dash(side.NextHop))
		}
	}
	tbl.Flush()

	fmt.Fprintf(w, "\nTrace to %s ended: %s", tr.Target, tr.Reason)
	if tr.Error != "" {
		fmt.Fprintf(w, " (%s)", tr.Error)
	}
	fmt.Fprintln(w)
}

func members(ref *trace.InterfaceRef) string {
	if !ref.IsAggregate() {
		return "-"
	}
	names := make([]string, len(ref.Members))
	for i, m := range ref.Members {
		names[i] = m.Name
	}
	return strings.Join(names, ",")
}

// totals sums input-errors and output-errors over the physical snapshots of
// side and counts unreported counters. A sum with any unknown term is
// "unknown".
func totals(side *trace.HopRecord) (in, out string, unknown int) {
	var inSum, outSum uint64
	inKnown, outKnown := true, true
	for _, s := range side.Counters {
		unknown += len(s.Unknown())
		inKnown = add(&inSum, s.Input, "input-errors") && inKnown
		outKnown = add(&outSum, s.Output, "output-errors") && outKnown
	}
	return format(inSum, inKnown), format(outSum, outKnown), unknown
}

func add(sum *uint64, cs []trace.Counter, name string) bool {
	for _, c := range cs {
		if c.Name != name {
			continue
		}
		v, ok := c.Value()
		if ok {
			*sum += v
		}
		return ok
	}
	return false
}

func format(v uint64, known bool) string {
	if !known {
		return "unknown"
	}
	return strconv.FormatUint(v, 10)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
