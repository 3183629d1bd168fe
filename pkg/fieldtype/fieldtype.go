// Package fieldtype defines the FieldType enumeration shared by
// FieldLayout, AggregateBag, and the record generator: a 16-bit
// identifier for one semantic column of a flow record, partitioned
// into key fields (IDs below CounterBase) and counter fields (IDs at
// or above CounterBase).
package fieldtype

// Type identifies one semantic field in a key or counter layout.
type Type uint16

// CounterBase splits the ID space: IDs below it are key fields, IDs at
// or above it are counter fields.
const CounterBase Type = 0x8000

// Key field types.
const (
	SIPv4 Type = iota
	DIPv4
	SIPv6
	DIPv6
	SPort
	DPort
	Protocol
	Packets
	Bytes
	Flags
	STime
	ETime
	AnyTime
	Sensor
	Input
	Output
	NextHop
	NextHopIPv6
	InitialTCPFlags
	SessionTCPFlags
	Application
	Class
	Type
	ICMPType
	ICMPCode
	Country
	SCountry
	DCountry
	PrefixMapValue
	numKeyTypes
)

// Counter field types.
const (
	Records Type = CounterBase + iota
	SumPackets
	SumBytes
	SumDuration
	numCounterTypes
)

// numCounterDefined is the count of defined counter types, used only
// to size the compact bitmap index below.
const numCounterDefined = int(numCounterTypes - CounterBase)

// BitmapWords sizes the bit-vector used by the layout registry's
// interning key. Defined types are remapped to a dense index by
// Index, so the bitmap only needs to cover the small number of types
// actually defined, not the full 16-bit ID space.
const BitmapWords = (int(numKeyTypes) + numCounterDefined + 63) / 64

// Index returns a dense, 0-based bit position for t suitable for use
// in a fixed-size bitmap key. Key types map to [0, numKeyTypes); the
// defined counter types map to [numKeyTypes, numKeyTypes+numCounterDefined).
func Index(t Type) (int, bool) {
	if IsKey(t) {
		if int(t) >= int(numKeyTypes) {
			return 0, false
		}
		return int(t), true
	}
	off := int(t - CounterBase)
	if off >= numCounterDefined {
		return 0, false
	}
	return int(numKeyTypes) + off, true
}

// Kind classifies how a field's bytes should be interpreted by typed
// getters/setters.
type Kind uint8

const (
	KindUnsigned Kind = iota
	KindSigned
	KindIPv4
	KindIPv6
)

// Descriptor describes one FieldType's on-disk shape and role.
type Descriptor struct {
	Name    string
	Octets  int
	Counter bool
	Kind    Kind
}

var descriptors = map[Type]Descriptor{
	SIPv4:           {"sipv4", 4, false, KindIPv4},
	DIPv4:           {"dipv4", 4, false, KindIPv4},
	SIPv6:           {"sipv6", 16, false, KindIPv6},
	DIPv6:           {"dipv6", 16, false, KindIPv6},
	SPort:           {"sport", 2, false, KindUnsigned},
	DPort:           {"dport", 2, false, KindUnsigned},
	Protocol:        {"protocol", 1, false, KindUnsigned},
	Packets:         {"packets", 4, false, KindUnsigned},
	Bytes:           {"bytes", 4, false, KindUnsigned},
	Flags:           {"flags", 1, false, KindUnsigned},
	STime:           {"stime", 8, false, KindSigned},
	ETime:           {"etime", 8, false, KindSigned},
	AnyTime:         {"anytime", 8, false, KindSigned},
	Sensor:          {"sensor", 2, false, KindUnsigned},
	Input:           {"input", 2, false, KindUnsigned},
	Output:          {"output", 2, false, KindUnsigned},
	NextHop:         {"next_hop", 4, false, KindIPv4},
	NextHopIPv6:     {"next_hop_ipv6", 16, false, KindIPv6},
	InitialTCPFlags: {"initial_tcp_flags", 1, false, KindUnsigned},
	SessionTCPFlags: {"session_tcp_flags", 1, false, KindUnsigned},
	Application:     {"application", 2, false, KindUnsigned},
	Class:           {"class", 1, false, KindUnsigned},
	Type:            {"type", 1, false, KindUnsigned},
	ICMPType:        {"icmp_type", 1, false, KindUnsigned},
	ICMPCode:        {"icmp_code", 1, false, KindUnsigned},
	Country:         {"country", 2, false, KindUnsigned},
	SCountry:        {"scountry", 2, false, KindUnsigned},
	DCountry:        {"dcountry", 2, false, KindUnsigned},
	PrefixMapValue:  {"prefix_map_value", 4, false, KindUnsigned},

	Records:     {"records", 8, true, KindUnsigned},
	SumPackets:  {"sum_packets", 8, true, KindUnsigned},
	SumBytes:    {"sum_bytes", 8, true, KindUnsigned},
	SumDuration: {"sum_duration", 8, true, KindUnsigned},
}

// Describe returns the Descriptor for t, and false if t is undefined.
func Describe(t Type) (Descriptor, bool) {
	d, ok := descriptors[t]
	return d, ok
}

// IsCounter reports whether t belongs to the counter ID range.
func IsCounter(t Type) bool { return t >= CounterBase }

// IsKey reports whether t belongs to the key ID range.
func IsKey(t Type) bool { return t < CounterBase }

// Octets returns the on-disk width of t, or 0 if t is undefined.
func Octets(t Type) int {
	d, ok := descriptors[t]
	if !ok {
		return 0
	}
	return d.Octets
}
