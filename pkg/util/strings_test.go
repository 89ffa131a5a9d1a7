package util

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitCommaSeparated(t *testing.T) {
	if got := SplitCommaSeparated(""); got != nil {
		t.Errorf("SplitCommaSeparated(\"\") = %v, want nil", got)
	}
	got := SplitCommaSeparated("a, b,,c ")
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("SplitCommaSeparated mismatch (-want +got):\n%s", diff)
	}
}

func TestNaturalLess(t *testing.T) {
	names := []string{"Ethernet12", "Ethernet4", "Ethernet0", "Ethernet100", "Ethernet8"}
	sort.Slice(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })
	want := []string{"Ethernet0", "Ethernet4", "Ethernet8", "Ethernet12", "Ethernet100"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("SONiC order mismatch (-want +got):\n%s", diff)
	}

	junos := []string{"et-0/0/10", "et-0/0/2", "et-0/1/0", "et-0/0/1"}
	sort.Slice(junos, func(i, j int) bool { return NaturalLess(junos[i], junos[j]) })
	wantJunos := []string{"et-0/0/1", "et-0/0/2", "et-0/0/10", "et-0/1/0"}
	if diff := cmp.Diff(wantJunos, junos); diff != "" {
		t.Errorf("Junos order mismatch (-want +got):\n%s", diff)
	}

	if NaturalLess("Ethernet0", "Ethernet0") {
		t.Error("NaturalLess(x, x) = true, want false")
	}
	if !NaturalLess("Ethernet", "Ethernet0") {
		t.Error("prefix should sort first")
	}
}
