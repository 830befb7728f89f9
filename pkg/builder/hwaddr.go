package builder

import (
	"regexp"
	"strings"
)

const (
	// HardwareAddressPlaceholder stands in for an absent hardware address.
	HardwareAddressPlaceholder = "0000000000000000"

	// ZeroHardwareAddress is emitted when no six octets can be recovered.
	ZeroHardwareAddress = "00:00:00:00:00:00"
)

var (
	macPattern   = regexp.MustCompile(`^[0-9A-Fa-f]{2}[:-][0-9A-Fa-f]{2}(?:[:-][0-9A-Fa-f]{2}){4}$`)
	nonHexDigits = regexp.MustCompile(`[^0-9A-Fa-f]`)
)

// NormalizeHardwareAddress returns a colon-delimited six-octet hardware
// address for raw.
//
// An empty value is replaced by the all-zero placeholder. A six-octet
// colon or hyphen address passes through with hyphens rewritten to colons.
// Anything else is reduced to its hex digits and chunked two at a time into
// six octets; fewer than twelve digits yields ZeroHardwareAddress.
func NormalizeHardwareAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = HardwareAddressPlaceholder
	}

	if macPattern.MatchString(raw) {
		return strings.ReplaceAll(raw, "-", ":")
	}

	digits := nonHexDigits.ReplaceAllString(raw, "")
	if len(digits) < 12 {
		return ZeroHardwareAddress
	}

	octets := make([]string, 6)
	for i := range octets {
		octets[i] = digits[i*2 : i*2+2]
	}
	return strings.Join(octets, ":")
}
