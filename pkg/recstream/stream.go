// Package recstream implements the buffered record-stream
// abstraction that AggregateBag and StreamCache build on: a
// self-describing, SiLK-style binary file with a stream header, one
// caller-defined header entry, and a densely packed record body.
package recstream

import (
	"bufio"
	"io"
	"os"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// Stream is the opaque record-stream abstraction. AggregateBag and
// StreamCache call it without interpreting its compression method or
// on-disk layout.
type Stream interface {
	WriteHeader(Header) error
	ReadHeader() (Header, error)
	WriteRecord(rec []byte) error
	ReadRecord(buf []byte) (int, error)
	Flush() error
	Close() error
}

// Writer is a Stream opened for truncating writes, backed by an
// *os.File so the StreamCache can track path/open-time metadata
// alongside it.
type Writer struct {
	path       string
	file       *os.File
	bw         *bufio.Writer
	cw         io.WriteCloser // compressing wrapper over bw, or bw itself
	header     Header
	wroteHead  bool
	recordLen  int
	recordsOut uint64
}

// Create opens path for truncating, buffered, optionally compressed
// writes. The caller must call WriteHeader before any WriteRecord.
func Create(path string, method CompressionMethod, recordLen int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, apperr.New(apperr.StreamWriteError, "recstream", "create", err)
	}
	bw := bufio.NewWriter(f)
	cw, err := newCompressingWriter(bw, method)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{path: path, file: f, bw: bw, cw: cw, recordLen: recordLen}, nil
}

// Path returns the filesystem path this writer was created against.
func (w *Writer) Path() string { return w.path }

// RecordsWritten reports how many WriteRecord calls have succeeded.
func (w *Writer) RecordsWritten() uint64 { return w.recordsOut }

func (w *Writer) WriteHeader(h Header) error {
	if w.wroteHead {
		return apperr.New(apperr.InvalidArgument, "recstream", "writeHeader", nil)
	}
	if err := encodeHeader(w.cw, h); err != nil {
		return apperr.New(apperr.StreamWriteError, "recstream", "writeHeader", err)
	}
	w.header = h
	w.wroteHead = true
	return nil
}

func (w *Writer) ReadHeader() (Header, error) {
	return Header{}, apperr.New(apperr.InvalidArgument, "recstream", "readHeader",
		errNotReadable)
}

func (w *Writer) WriteRecord(rec []byte) error {
	if !w.wroteHead {
		return apperr.New(apperr.InvalidArgument, "recstream", "writeRecord", nil)
	}
	if len(rec) != w.recordLen {
		return apperr.New(apperr.HeaderMalformed, "recstream", "writeRecord", nil)
	}
	if _, err := w.cw.Write(rec); err != nil {
		return apperr.New(apperr.StreamWriteError, "recstream", "writeRecord", err)
	}
	w.recordsOut++
	return nil
}

func (w *Writer) ReadRecord([]byte) (int, error) {
	return 0, apperr.New(apperr.InvalidArgument, "recstream", "readRecord", errNotReadable)
}

// Flush pushes buffered compressed data and the underlying bufio
// buffer down to the OS, but does not fsync; StreamCache decides fsync
// policy around publish.
func (w *Writer) Flush() error {
	if cf, ok := w.cw.(flusher); ok {
		if err := cf.Flush(); err != nil {
			return apperr.New(apperr.StreamWriteError, "recstream", "flush", err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		return apperr.New(apperr.StreamWriteError, "recstream", "flush", err)
	}
	return nil
}

func (w *Writer) Close() error {
	var errs []error
	// Closing the compressor first puts its trailer into bw before the
	// final bufio flush.
	if err := w.cw.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := w.bw.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return apperr.New(apperr.StreamWriteError, "recstream", "close", errs[0])
	}
	return nil
}

type flusher interface {
	Flush() error
}

// Reader is a Stream opened for sequential, optionally decompressed
// reads, used by aggbag.ReadFrom and cmd/aggbagcat.
type Reader struct {
	file      *os.File
	br        *bufio.Reader
	cr        io.Reader
	header    Header
	readHead  bool
	recordLen int
}

// Open opens path for reading. recordLen is unknown until ReadHeader
// is called, which derives it from the decoded header entry.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.StreamReadError, "recstream", "open", err)
	}
	return &Reader{file: f, br: bufio.NewReader(f)}, nil
}

func (r *Reader) WriteHeader(Header) error {
	return apperr.New(apperr.InvalidArgument, "recstream", "writeHeader", errNotWritable)
}

func (r *Reader) ReadHeader() (Header, error) {
	if r.readHead {
		return r.header, nil
	}
	h, err := decodeHeader(r.br)
	if err != nil {
		return Header{}, apperr.New(apperr.StreamReadError, "recstream", "readHeader", err)
	}
	cr, err := newDecompressingReader(r.br, h.CompressionMethod)
	if err != nil {
		return Header{}, err
	}
	r.cr = cr
	r.header = h
	r.recordLen = h.Entry.KeyOctets + h.Entry.CounterOctets
	r.readHead = true
	return h, nil
}

func (r *Reader) WriteRecord([]byte) error {
	return apperr.New(apperr.InvalidArgument, "recstream", "writeRecord", errNotWritable)
}

func (r *Reader) ReadRecord(buf []byte) (int, error) {
	if !r.readHead {
		return 0, apperr.New(apperr.InvalidArgument, "recstream", "readRecord", nil)
	}
	if len(buf) < r.recordLen {
		return 0, apperr.New(apperr.BadIndex, "recstream", "readRecord", nil)
	}
	n, err := io.ReadFull(r.cr, buf[:r.recordLen])
	if err == io.EOF {
		return 0, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return n, apperr.New(apperr.StreamReadError, "recstream", "readRecord",
			errPartialRecord)
	}
	if err != nil {
		return n, apperr.New(apperr.StreamReadError, "recstream", "readRecord", err)
	}
	return n, nil
}

func (r *Reader) Flush() error { return nil }

func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return apperr.New(apperr.StreamReadError, "recstream", "close", err)
	}
	return nil
}
