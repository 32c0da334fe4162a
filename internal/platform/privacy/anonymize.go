// Package privacy masks applicant and client identifiers before they reach logs.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP truncates an address to its /24 (IPv4) or /48 (IPv6) network.
// Returns "unknown" for empty input and "invalid" for unparseable input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskDocument keeps the last four characters of an identity document number.
func MaskDocument(doc string) string {
	doc = strings.TrimSpace(doc)
	if len(doc) <= 4 {
		return strings.Repeat("*", len(doc))
	}
	return strings.Repeat("*", len(doc)-4) + doc[len(doc)-4:]
}

// MaskEmail keeps the first character of the local part and the full domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
