// Package report renders a finished trace: the plain-text report operators
// read, a JSON document, a Prometheus textfile and a one-screen summary.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
)

// ClockFormat is the time-of-day stamp prefixed to report lines.
const ClockFormat = "15:04:05.000000"

// FileName returns the report file name for a trace started at now,
// e.g. "Report 01-03-2024 10-00-00.txt".
func FileName(now time.Time) string {
	return "Report " + now.Format("02-01-2006 15-04-05") + ".txt"
}

// WriteFile writes the text report of tr into dir and returns its path.
func WriteFile(dir string, tr *trace.Trace) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(tr.Started))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteText(f, tr); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// WriteText writes the human-readable report.
func WriteText(w io.Writer, tr *trace.Trace) error {
	b := bufio.NewWriter(w)

	fmt.Fprintf(b, "%s REPORT IP %s starting from %s\n", tr.Started.Format(ClockFormat), tr.Target, tr.Start)
	if !tr.HardwareAddress.IsZero() {
		fmt.Fprintf(b, "Target hardware address %s\n", tr.HardwareAddress)
	}

	for i := range tr.Hops {
		hop := &tr.Hops[i]
		fmt.Fprintf(b, "\n--- Hop %d ---\n", hop.Index)
		for _, side := range hop.Sides() {
			writeSide(b, side, tr.Started)
		}
	}

	fmt.Fprintf(b, "\n%s Trace ended: %s", tr.Finished.Format(ClockFormat), tr.Reason)
	if tr.Error != "" {
		fmt.Fprintf(b, ": %s", tr.Error)
	}
	fmt.Fprintln(b)
	return b.Flush()
}

func writeSide(w io.Writer, side *trace.HopRecord, fallback time.Time) {
	fmt.Fprintf(w, "\n%s Connected to device %s(%s)\n", sideTime(side, fallback).Format(ClockFormat), side.Device.Name, side.Device.Address)
	for _, note := range side.Notes {
		fmt.Fprintf(w, "%s %s\n", side.Device.Name, note)
	}
	if !side.Resolved() {
		fmt.Fprintf(w, "%s does not carry the target\n", side.Device.Name)
		return
	}

	if side.Aggregate != nil {
		writeSnapshot(w, side.Aggregate)
	}
	for i := range side.Counters {
		writeSnapshot(w, &side.Counters[i])
	}
	if side.NextHop != "" {
		fmt.Fprintf(w, "\nNext hop %s\n", side.NextHop)
	}
}

// sideTime is the time the side was queried: its first snapshot, or the
// trace start when none was taken.
func sideTime(side *trace.HopRecord, fallback time.Time) time.Time {
	if side.Aggregate != nil {
		return side.Aggregate.Taken
	}
	if len(side.Counters) > 0 {
		return side.Counters[0].Taken
	}
	return fallback
}

func writeSnapshot(w io.Writer, s *trace.CounterSnapshot) {
	fmt.Fprintf(w, "\n%s\n", s.Interface)
	if s.Error != "" {
		fmt.Fprintf(w, "counter query failed: %s\n", s.Error)
	}

	fmt.Fprintln(w, "Input error list:")
	writeCounters(w, s.Input)
	fmt.Fprintln(w, "Output error list:")
	writeCounters(w, s.Output)

	fmt.Fprintln(w, "Queue counters errors:")
	for _, q := range s.Queues {
		fmt.Fprintf(w, "\t%s drops: %s\n", q.ForwardingClass, q.Drops)
	}

	if s.Physical != nil {
		fmt.Fprintln(w, "ethernet-pcs-statistics:")
		writeCounters(w, s.Physical.PCS)
		fmt.Fprintln(w, "ethernet-fec-statistics:")
		writeCounters(w, s.Physical.FEC)
		fmt.Fprintln(w, "ethernet-mac-statistics:")
		writeCounters(w, s.Physical.MAC)
	}
}

func writeCounters(w io.Writer, cs []trace.Counter) {
	for _, c := range cs {
		fmt.Fprintf(w, "\t%s: %s\n", c.Name, c)
	}
}
