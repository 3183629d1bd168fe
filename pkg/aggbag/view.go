package aggbag

import (
	"encoding/binary"
	"net"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/layout"
)

// fieldBytes returns the byte range of f within raw.
func fieldBytes(raw []byte, f layout.Field) []byte {
	return raw[f.Offset : f.Offset+f.Length]
}

// Uint reads f as an unsigned integer. It returns GetSetMismatch if f
// is not an unsigned-kind field.
func Uint(raw []byte, l *layout.Layout, t fieldtype.Type) (uint64, error) {
	f, ok := l.Find(t)
	if !ok {
		return 0, apperr.New(apperr.UndefinedKey, "aggbag", "uint", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindUnsigned {
		return 0, apperr.New(apperr.GetSetMismatch, "aggbag", "uint", nil)
	}
	return decodeBigEndianUint(fieldBytes(raw, f)), nil
}

// Int reads f as a signed integer (datetime fields). It returns
// GetSetMismatch if f is not a signed-kind field.
func Int(raw []byte, l *layout.Layout, t fieldtype.Type) (int64, error) {
	f, ok := l.Find(t)
	if !ok {
		return 0, apperr.New(apperr.UndefinedKey, "aggbag", "int", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindSigned {
		return 0, apperr.New(apperr.GetSetMismatch, "aggbag", "int", nil)
	}
	return int64(decodeBigEndianUint(fieldBytes(raw, f))), nil
}

// IP reads f as an IPv4 or IPv6 address. It returns GetSetMismatch if
// f is not an IP-kind field.
func IP(raw []byte, l *layout.Layout, t fieldtype.Type) (net.IP, error) {
	f, ok := l.Find(t)
	if !ok {
		return nil, apperr.New(apperr.UndefinedKey, "aggbag", "ip", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindIPv4 && d.Kind != fieldtype.KindIPv6 {
		return nil, apperr.New(apperr.GetSetMismatch, "aggbag", "ip", nil)
	}
	b := fieldBytes(raw, f)
	out := make(net.IP, len(b))
	copy(out, b)
	return out, nil
}

// SetUint writes an unsigned value into f's byte range within raw.
func SetUint(raw []byte, l *layout.Layout, t fieldtype.Type, v uint64) error {
	f, ok := l.Find(t)
	if !ok {
		return apperr.New(apperr.UndefinedKey, "aggbag", "setUint", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindUnsigned {
		return apperr.New(apperr.GetSetMismatch, "aggbag", "setUint", nil)
	}
	encodeBigEndianUint(fieldBytes(raw, f), v)
	return nil
}

// SetInt writes a signed value into f's byte range within raw.
func SetInt(raw []byte, l *layout.Layout, t fieldtype.Type, v int64) error {
	f, ok := l.Find(t)
	if !ok {
		return apperr.New(apperr.UndefinedKey, "aggbag", "setInt", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindSigned {
		return apperr.New(apperr.GetSetMismatch, "aggbag", "setInt", nil)
	}
	encodeBigEndianUint(fieldBytes(raw, f), uint64(v))
	return nil
}

// SetIP writes an IP address into f's byte range within raw.
func SetIP(raw []byte, l *layout.Layout, t fieldtype.Type, ip net.IP) error {
	f, ok := l.Find(t)
	if !ok {
		return apperr.New(apperr.UndefinedKey, "aggbag", "setIP", nil)
	}
	d, _ := fieldtype.Describe(t)
	if d.Kind != fieldtype.KindIPv4 && d.Kind != fieldtype.KindIPv6 {
		return apperr.New(apperr.GetSetMismatch, "aggbag", "setIP", nil)
	}
	dst := fieldBytes(raw, f)
	var src net.IP
	if d.Kind == fieldtype.KindIPv4 {
		src = ip.To4()
	} else {
		src = ip.To16()
	}
	if src == nil || len(src) != len(dst) {
		return apperr.New(apperr.BadIndex, "aggbag", "setIP", nil)
	}
	copy(dst, src)
	return nil
}

func decodeBigEndianUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	case 8:
		return binary.BigEndian.Uint64(b)
	default:
		var v uint64
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return v
	}
}

func encodeBigEndianUint(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(b, v)
	default:
		for i := len(b) - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	}
}
