// Package binaryCoder provides the archive primitives shared by the registry
// file format and the content file format. Integers are protobuf varints or
// little endian fixed width values, strings and byte blobs are length
// prefixed.
package binaryCoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrTruncated       = errors.New("binaryCoder: unexpected end of archive")
	ErrMalformed       = errors.New("binaryCoder: malformed archive")
	ErrIndexOutOfRange = errors.New("binaryCoder: index out of range")
)

type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 4096)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteUvarint(v uint64) {
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *Writer) WriteVarint(v int64) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) WriteCount(n int) {
	w.WriteUvarint(uint64(n))
}

func (w *Writer) WriteBool(v bool) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeBool(v))
}

func (w *Writer) WriteFixed32(v uint32) {
	w.buf = protowire.AppendFixed32(w.buf, v)
}

func (w *Writer) WriteFixed64(v uint64) {
	w.buf = protowire.AppendFixed64(w.buf, v)
}

func (w *Writer) WriteString(s string) {
	w.buf = protowire.AppendString(w.buf, s)
}

func (w *Writer) WriteBytes(b []byte) {
	w.buf = protowire.AppendBytes(w.buf, b)
}

// WriteRaw appends b without a length prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteGUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// ReserveFixed32 writes a zero placeholder and returns its offset for PatchFixed32.
func (w *Writer) ReserveFixed32() int {
	off := len(w.buf)
	w.WriteFixed32(0)
	return off
}

func (w *Writer) PatchFixed32(off int, v uint32) {
	patched := protowire.AppendFixed32(nil, v)
	copy(w.buf[off:off+4], patched)
}

// Reader decodes an archive. The first failure sticks: later reads return
// zero values and Err reports the original cause.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Failed() bool   { return r.err != nil }
func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Len() int       { return len(r.buf) }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Fail marks the archive failed unless it already is.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) consumed(n int) bool {
	if n < 0 {
		err := protowire.ParseError(n)
		if errors.Is(err, io.ErrUnexpectedEOF) || r.Remaining() == 0 {
			r.Fail(fmt.Errorf("%w at offset %d", ErrTruncated, r.off))
		} else {
			r.Fail(fmt.Errorf("%w at offset %d: %v", ErrMalformed, r.off, err))
		}
		return false
	}
	r.off += n
	return true
}

// Seek moves to an absolute offset.
func (r *Reader) Seek(off int) {
	if r.err != nil {
		return
	}
	if off < 0 || off > len(r.buf) {
		r.Fail(fmt.Errorf("%w: seek to %d beyond %d bytes", ErrTruncated, off, len(r.buf)))
		return
	}
	r.off = off
}

func (r *Reader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadVarint() int64 {
	return protowire.DecodeZigZag(r.ReadUvarint())
}

func (r *Reader) ReadBool() bool {
	return protowire.DecodeBool(r.ReadUvarint())
}

func (r *Reader) ReadFixed32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadFixed64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadString() string {
	if r.err != nil {
		return ""
	}
	v, n := protowire.ConsumeString(r.buf[r.off:])
	if !r.consumed(n) {
		return ""
	}
	return v
}

// ReadBytes returns a copy of a length prefixed blob.
func (r *Reader) ReadBytes() []byte {
	if r.err != nil {
		return nil
	}
	v, n := protowire.ConsumeBytes(r.buf[r.off:])
	if !r.consumed(n) {
		return nil
	}
	return append([]byte(nil), v...)
}

// ReadRaw returns a copy of the next n bytes.
func (r *Reader) ReadRaw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.Fail(fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off))
		return nil
	}
	out := append([]byte(nil), r.buf[r.off:r.off+n]...)
	r.off += n
	return out
}

func (r *Reader) ReadGUID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.ReadRaw(len(id)))
	return id
}

// ReadCount reads an element count. Every element takes at least
// minElemSize bytes, so counts that cannot fit in the rest of the archive
// fail instead of driving a huge allocation.
func (r *Reader) ReadCount(minElemSize int) int {
	v := r.ReadUvarint()
	if r.err != nil {
		return 0
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if v > uint64(r.Remaining()/minElemSize) {
		r.Fail(fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrMalformed, v, r.Remaining()))
		return 0
	}
	return int(v)
}

// ReadIndex reads an index and validates it against [0, limit).
func (r *Reader) ReadIndex(limit int) int {
	v := r.ReadUvarint()
	if r.err != nil {
		return 0
	}
	if v >= uint64(limit) {
		r.Fail(fmt.Errorf("%w: %d not below %d", ErrIndexOutOfRange, v, limit))
		return 0
	}
	return int(v)
}
