package main

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/recgen"
	"github.com/movsoftware/silk-sub015/pkg/recstream"
	"github.com/movsoftware/silk-sub015/pkg/streamcache"
)

// recordOctets is the fixed on-disk width of one generated record:
// start time, end time, sensor ID, flowtype ID, and an 8-byte payload
// counter. RecGen produces synthetic traffic, not a byte-exact SiLK
// flow record, so the payload is a fixed-width opaque counter rather
// than a variable-length blob.
const recordOctets = 8 + 8 + 4 + 4 + 8

// rawKeyTypes describes the generated record's fixed layout purely for
// the recstream header's field-type array; the stream itself is read
// back by cmd/aggbagcat-style tooling using recordOctets, not by
// interpreting these types individually.
var rawKeyTypes = []fieldtype.Type{fieldtype.STime, fieldtype.ETime, fieldtype.Sensor, fieldtype.Type}

// streamSink adapts a streamcache.Cache to recgen.Sink, resolving each
// record's cache key from its sensor/flowtype/hour and encoding it to
// the fixed-width wire format recstream expects.
type streamSink struct {
	cache *streamcache.Cache
}

func newStreamSink(cacheSize int, outputDir, spillDir string, inactive time.Duration) (*streamSink, error) {
	cache, err := streamcache.New(cacheSize, openFunc(spillDir), outputDir, inactive, nil)
	if err != nil {
		return nil, err
	}
	return &streamSink{cache: cache}, nil
}

func openFunc(spillDir string) streamcache.OpenFunc {
	return func(_ context.Context, key streamcache.Key) (*recstream.Writer, error) {
		w, err := recstream.CreateIncrementalFile(
			spillDir,
			strconv.FormatUint(uint64(key.FlowtypeID), 10),
			strconv.FormatUint(uint64(key.SensorID), 10),
			key.Hour,
			recstream.CompressionNone,
			recordOctets,
		)
		if err != nil {
			return nil, err
		}
		if err := w.WriteHeader(rawRecordHeader()); err != nil {
			w.Close()
			return nil, err
		}
		return w, nil
	}
}

func rawRecordHeader() recstream.Header {
	return recstream.NewAggbagHeader(rawKeyTypes, nil, recstream.CompressionNone)
}

func (s *streamSink) WriteRecord(r recgen.Record) error {
	key := streamcache.Key{
		SensorID:   r.SensorID,
		FlowtypeID: r.FlowtypeID,
		Hour:       time.UnixMilli(r.EndMillis).Truncate(time.Hour),
	}
	w, err := s.cache.LookupOrOpen(context.Background(), key)
	if err != nil {
		return err
	}

	buf := make([]byte, recordOctets)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.StartMillis))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.EndMillis))
	binary.BigEndian.PutUint32(buf[16:20], r.SensorID)
	binary.BigEndian.PutUint32(buf[20:24], r.FlowtypeID)
	copy(buf[24:32], r.Payload)
	return w.WriteRecord(buf)
}

func (s *streamSink) Flush() error {
	return s.cache.Flush(context.Background())
}

func (s *streamSink) Close() error {
	return s.cache.CloseAll()
}

var _ recgen.Sink = (*streamSink)(nil)
