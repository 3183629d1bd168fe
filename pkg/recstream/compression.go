package recstream

import (
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// CompressionMethod is passed through to stream headers and never
// interpreted by pkg/aggbag or pkg/streamcache.
type CompressionMethod byte

const (
	CompressionNone CompressionMethod = iota
	CompressionZlib
	CompressionSnappy
	CompressionLZ4
)

func newCompressingWriter(w io.Writer, method CompressionMethod) (io.WriteCloser, error) {
	switch method {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZlib:
		return zlib.NewWriter(w), nil
	case CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		return zw, nil
	default:
		return nil, apperr.New(apperr.InvalidArgument, "recstream", "newCompressingWriter", nil)
	}
}

func newDecompressingReader(r io.Reader, method CompressionMethod) (io.Reader, error) {
	switch method {
	case CompressionNone:
		return r, nil
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, apperr.New(apperr.StreamReadError, "recstream", "newDecompressingReader", err)
		}
		return zr, nil
	case CompressionSnappy:
		return snappy.NewReader(r), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, apperr.New(apperr.InvalidArgument, "recstream", "newDecompressingReader", nil)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
