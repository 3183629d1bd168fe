// Package prefixmap implements a pure IPv4 prefix-to-sensor lookup: a
// sorted slice of CIDR-tagged ranges searched by binary search.
package prefixmap

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// entry is one CIDR range tagged with the sensor it maps to. lo/hi are
// the inclusive first/last addresses of the range as big-endian
// uint32s, so binary search can operate on plain integers.
type entry struct {
	lo, hi   uint32
	sensorID uint32
}

// Map is an immutable, sorted set of non-overlapping CIDR ranges.
// Build it once via New and look up many times; Map is read-only and
// therefore safe for concurrent use without locking.
type Map struct {
	entries []entry
}

// Range associates one CIDR prefix with a sensor ID, the input shape
// New expects.
type Range struct {
	CIDR     string
	SensorID uint32
}

// New builds a Map from ranges, sorting them by starting address. It
// returns InvalidArgument if any CIDR fails to parse and
// UnsupportedIPv6 if one is IPv6; this map only covers IPv4 ranges.
func New(ranges []Range) (*Map, error) {
	entries := make([]entry, 0, len(ranges))
	for _, r := range ranges {
		_, ipnet, err := net.ParseCIDR(r.CIDR)
		if err != nil {
			return nil, apperr.New(apperr.InvalidArgument, "prefixmap", "new", err)
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			return nil, apperr.New(apperr.UnsupportedIPv6, "prefixmap", "new", nil)
		}
		ones, bits := ipnet.Mask.Size()
		lo := binary.BigEndian.Uint32(ip4)
		width := uint32(bits - ones)
		var hi uint32
		if width >= 32 {
			hi = ^uint32(0)
		} else {
			hi = lo | ((uint32(1) << width) - 1)
		}
		entries = append(entries, entry{lo: lo, hi: hi, sensorID: r.SensorID})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].lo < entries[j].lo })
	return &Map{entries: entries}, nil
}

// Lookup returns the sensor ID whose range contains ip, and false if
// no range matches or ip is not a valid IPv4 address.
func (m *Map) Lookup(ip net.IP) (uint32, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	v := binary.BigEndian.Uint32(ip4)

	lo, hi := 0, len(m.entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		e := m.entries[mid]
		switch {
		case v < e.lo:
			hi = mid - 1
		case v > e.hi:
			lo = mid + 1
		default:
			return e.sensorID, true
		}
	}
	return 0, false
}

// Len reports the number of ranges in the map.
func (m *Map) Len() int { return len(m.entries) }
