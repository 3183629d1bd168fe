package recstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
)

var (
	errNotReadable   = errors.New("recstream: writer does not support reads")
	errNotWritable   = errors.New("recstream: reader does not support writes")
	errPartialRecord = errors.New("recstream: partial record at EOF")
)

// magicFileFormat identifies this module's stream format, analogous
// to a SiLK FT_* file-format byte.
const magicFileFormat uint32 = 0x53494c4b // "SILK"

// hentryAggbagID is the header-entry type ID for the aggregate-bag
// header entry.
const hentryAggbagID uint32 = 1

const aggbagHeaderVersion uint32 = 1

// AggbagEntry is the decoded aggregate-bag header entry payload.
type AggbagEntry struct {
	KeyTypes     []fieldtype.Type
	CounterTypes []fieldtype.Type
	KeyOctets    int
	CounterOctets int
}

// Header is the two-layer stream header: the file-format stream
// header plus the aggregate-bag header entry.
type Header struct {
	CompressionMethod CompressionMethod
	Entry             AggbagEntry
}

// NewAggbagHeader builds a Header for a bag with the given key and
// counter field types, computing octet widths from pkg/fieldtype.
func NewAggbagHeader(keyTypes, counterTypes []fieldtype.Type, method CompressionMethod) Header {
	e := AggbagEntry{KeyTypes: keyTypes, CounterTypes: counterTypes}
	for _, t := range keyTypes {
		e.KeyOctets += fieldtype.Octets(t)
	}
	for _, t := range counterTypes {
		e.CounterOctets += fieldtype.Octets(t)
	}
	return Header{CompressionMethod: method, Entry: e}
}

// encodeHeader writes the stream header followed by the aggregate-bag
// header entry, all big-endian, to w.
func encodeHeader(w io.Writer, h Header) error {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], magicFileFormat)
	binary.BigEndian.PutUint16(buf[4:6], uint16(h.Entry.KeyOctets+h.Entry.CounterOctets))
	buf[6] = byte(h.CompressionMethod)
	binary.BigEndian.PutUint32(buf[8:12], hentryAggbagID)
	if _, err := w.Write(buf[:12]); err != nil {
		return err
	}

	fieldCount := len(h.Entry.KeyTypes) + len(h.Entry.CounterTypes)
	if fieldCount < 2 {
		return apperr.New(apperr.HeaderMalformed, "recstream", "encodeHeader",
			fmt.Errorf("field_count %d must be >= 2", fieldCount))
	}
	keyCount := len(h.Entry.KeyTypes)
	if keyCount >= fieldCount {
		return apperr.New(apperr.HeaderMalformed, "recstream", "encodeHeader",
			fmt.Errorf("key_count %d must be < field_count %d", keyCount, fieldCount))
	}

	var entryHead [8]byte
	binary.BigEndian.PutUint32(entryHead[0:4], aggbagHeaderVersion)
	binary.BigEndian.PutUint16(entryHead[4:6], uint16(fieldCount))
	binary.BigEndian.PutUint16(entryHead[6:8], uint16(keyCount))
	if _, err := w.Write(entryHead[:]); err != nil {
		return err
	}

	types := make([]byte, 2*fieldCount)
	i := 0
	for _, t := range h.Entry.KeyTypes {
		binary.BigEndian.PutUint16(types[i:i+2], uint16(t))
		i += 2
	}
	for _, t := range h.Entry.CounterTypes {
		binary.BigEndian.PutUint16(types[i:i+2], uint16(t))
		i += 2
	}
	_, err := w.Write(types)
	return err
}

// decodeHeader reads and validates a stream header + aggregate-bag
// header entry from r, rejecting an unknown header version or a
// key_count that doesn't leave room for at least one counter field.
func decodeHeader(r io.Reader) (Header, error) {
	var streamHead [12]byte
	if _, err := io.ReadFull(r, streamHead[:]); err != nil {
		return Header{}, fmt.Errorf("stream header: %w", err)
	}
	if binary.BigEndian.Uint32(streamHead[0:4]) != magicFileFormat {
		return Header{}, fmt.Errorf("unrecognized file format magic")
	}
	recordLen := int(binary.BigEndian.Uint16(streamHead[4:6]))
	method := CompressionMethod(streamHead[6])
	if binary.BigEndian.Uint32(streamHead[8:12]) != hentryAggbagID {
		return Header{}, fmt.Errorf("unrecognized header entry type")
	}

	var entryHead [8]byte
	if _, err := io.ReadFull(r, entryHead[:]); err != nil {
		return Header{}, fmt.Errorf("aggbag header entry: %w", err)
	}
	version := binary.BigEndian.Uint32(entryHead[0:4])
	if version != aggbagHeaderVersion {
		return Header{}, fmt.Errorf("unsupported header_version %d", version)
	}
	fieldCount := int(binary.BigEndian.Uint16(entryHead[4:6]))
	keyCount := int(binary.BigEndian.Uint16(entryHead[6:8]))
	if fieldCount < 2 {
		return Header{}, fmt.Errorf("field_count %d must be >= 2", fieldCount)
	}
	if keyCount >= fieldCount {
		return Header{}, fmt.Errorf("key_count %d must be < field_count %d", keyCount, fieldCount)
	}

	raw := make([]byte, 2*fieldCount)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, fmt.Errorf("field type array: %w", err)
	}

	e := AggbagEntry{}
	for i := 0; i < keyCount; i++ {
		t := fieldtype.Type(binary.BigEndian.Uint16(raw[2*i : 2*i+2]))
		e.KeyTypes = append(e.KeyTypes, t)
		e.KeyOctets += fieldtype.Octets(t)
	}
	for i := keyCount; i < fieldCount; i++ {
		t := fieldtype.Type(binary.BigEndian.Uint16(raw[2*i : 2*i+2]))
		e.CounterTypes = append(e.CounterTypes, t)
		e.CounterOctets += fieldtype.Octets(t)
	}
	if e.KeyOctets+e.CounterOctets != recordLen {
		return Header{}, fmt.Errorf("record length mismatch: header says %d, fields total %d",
			recordLen, e.KeyOctets+e.CounterOctets)
	}

	return Header{CompressionMethod: method, Entry: e}, nil
}
