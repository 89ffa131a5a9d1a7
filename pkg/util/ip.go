package util

import (
	"net"
	"strings"
)

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIP checks if a string is a valid IPv4 or IPv6 address
func IsValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}

// SameIP reports whether a and b are the same address, ignoring notation
// differences such as IPv4-mapped IPv6 or leading zeros in IPv6 groups.
// Falls back to string equality when either side does not parse.
func SameIP(a, b string) bool {
	ipa, ipb := net.ParseIP(strings.TrimSpace(a)), net.ParseIP(strings.TrimSpace(b))
	if ipa == nil || ipb == nil {
		return a == b
	}
	return ipa.Equal(ipb)
}

// PreferIPv4 picks one address out of a comma-separated list as reported by
// LLDP (management addresses may carry both families). The first IPv4 entry
// wins; otherwise the first entry is returned. Empty input returns "".
func PreferIPv4(list string) string {
	addrs := SplitCommaSeparated(list)
	for _, a := range addrs {
		if IsValidIPv4(a) {
			return a
		}
	}
	if len(addrs) > 0 {
		return addrs[0]
	}
	return ""
}

// NormalizeMAC returns the canonical lower-case colon form of a 48-bit
// hardware address. Accepts colon, hyphen and dotted-quad notations.
func NormalizeMAC(s string) (string, bool) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", false
	}
	return hw.String(), true
}
