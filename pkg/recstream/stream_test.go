package recstream

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
)

func timeInHour(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestWriteReadRoundTripUncompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")

	h := NewAggbagHeader(
		[]fieldtype.Type{fieldtype.SIPv4},
		[]fieldtype.Type{fieldtype.SumBytes},
		CompressionNone,
	)
	w, err := Create(path, CompressionNone, h.Entry.KeyOctets+h.Entry.CounterOctets)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(h))

	rec1 := make([]byte, h.Entry.KeyOctets+h.Entry.CounterOctets)
	rec1[3] = 1
	rec2 := make([]byte, len(rec1))
	rec2[3] = 2
	require.NoError(t, w.WriteRecord(rec1))
	require.NoError(t, w.WriteRecord(rec2))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	gotHeader, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, h.Entry.KeyOctets, gotHeader.Entry.KeyOctets)
	require.Equal(t, h.Entry.CounterOctets, gotHeader.Entry.CounterOctets)
	require.Equal(t, []fieldtype.Type{fieldtype.SIPv4}, gotHeader.Entry.KeyTypes)
	require.Equal(t, []fieldtype.Type{fieldtype.SumBytes}, gotHeader.Entry.CounterTypes)

	buf := make([]byte, len(rec1))
	n, err := r.ReadRecord(buf)
	require.NoError(t, err)
	require.Equal(t, len(rec1), n)
	require.Equal(t, rec1, buf)

	n, err = r.ReadRecord(buf)
	require.NoError(t, err)
	require.Equal(t, rec2, buf)

	_, err = r.ReadRecord(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestWriteReadRoundTripEachCompressionMethod(t *testing.T) {
	for _, method := range []CompressionMethod{CompressionNone, CompressionZlib, CompressionSnappy, CompressionLZ4} {
		method := method
		t.Run(methodName(method), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "out.dat")

			h := NewAggbagHeader(
				[]fieldtype.Type{fieldtype.SIPv4, fieldtype.DPort},
				[]fieldtype.Type{fieldtype.Records},
				method,
			)
			recLen := h.Entry.KeyOctets + h.Entry.CounterOctets
			w, err := Create(path, method, recLen)
			require.NoError(t, err)
			require.NoError(t, w.WriteHeader(h))
			rec := make([]byte, recLen)
			for i := range rec {
				rec[i] = byte(i)
			}
			require.NoError(t, w.WriteRecord(rec))
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()
			_, err = r.ReadHeader()
			require.NoError(t, err)

			buf := make([]byte, recLen)
			_, err = r.ReadRecord(buf)
			require.NoError(t, err)
			require.Equal(t, rec, buf)
		})
	}
}

func methodName(m CompressionMethod) string {
	switch m {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

func TestHeaderRejectsFieldCountBelowTwo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dat")
	h := NewAggbagHeader([]fieldtype.Type{fieldtype.SIPv4}, nil, CompressionNone)
	w, err := Create(path, CompressionNone, h.Entry.KeyOctets)
	require.NoError(t, err)
	err = w.WriteHeader(h)
	require.Error(t, err)
}

func TestPublishIncrementalRenamesIntoOutputDir(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "staged-file")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	destPath, err := PublishIncremental(context.Background(), srcPath, outDir)
	require.NoError(t, err)
	require.FileExists(t, destPath)
	require.NoFileExists(t, srcPath)

	contents, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}

func TestCreateIncrementalFileBuildsFlowtypeSensorHourPath(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateIncrementalFile(dir, "inweb", "S0", timeInHour(2024, 3, 1, 10), CompressionNone, 16)
	require.NoError(t, err)
	defer w.Close()

	require.Contains(t, w.Path(), filepath.Join(dir, "inweb", "S0"))
}
