package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	stationRe = regexp.MustCompile(`^([A-Z]{2})-(\d+)$`)
	deviceRe  = regexp.MustCompile(`^IOT-(\d{4})-(\d{3,})$`)
	productRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// StationID holds the structured parts of a station identifier such as "GS-01".
type StationID struct {
	Prefix string
	Seq    int
}

// DeviceID holds the structured parts of a device identifier such as "IOT-2024-001".
type DeviceID struct {
	Year int
	Seq  int
}

// ParseStationID splits a station identifier into its two-letter prefix and sequence.
// Surrounding whitespace is ignored and the prefix is matched case-insensitively.
func ParseStationID(raw string) (StationID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	m := stationRe.FindStringSubmatch(s)
	if m == nil {
		return StationID{}, fmt.Errorf("unable to parse station id: %q", raw)
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return StationID{}, fmt.Errorf("unable to parse station sequence in %q: %w", raw, err)
	}
	return StationID{Prefix: m[1], Seq: seq}, nil
}

// StationPrefix returns the part of id before the first "-", or "" when there is none.
// Unlike ParseStationID it never fails, so it can classify ids that were never validated.
func StationPrefix(id string) string {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return ""
	}
	return prefix
}

// ParseDeviceID extracts year and sequence number from a device identifier.
func ParseDeviceID(raw string) (DeviceID, error) {
	m := deviceRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return DeviceID{}, fmt.Errorf("unable to parse device id: %q", raw)
	}
	year, _ := strconv.Atoi(m[1])
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return DeviceID{}, fmt.Errorf("unable to parse device sequence in %q: %w", raw, err)
	}
	return DeviceID{Year: year, Seq: seq}, nil
}

// FormatDeviceID renders a device identifier; the sequence is zero padded to three digits.
func FormatDeviceID(year, seq int) string {
	return fmt.Sprintf("IOT-%d-%03d", year, seq)
}

// ValidProductCode reports whether code is a three letter upper-case product code.
func ValidProductCode(code string) bool {
	return productRe.MatchString(code)
}
