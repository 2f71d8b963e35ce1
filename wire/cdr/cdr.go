// Package cdr implements the subset of Common Data Representation needed
// by the RTPS submessage codec: plain CDR and parameter-list CDR (PL_CDR)
// used by discovery types (spec.md §6.1, §6.4). XCDR2 is not
// implemented: 8-byte values always align to 8 bytes.
package cdr

import (
	"encoding/binary"
	"fmt"
)

// Endian selects the byte order a CDR stream is encoded with. RTPS
// submessages carry the endianness flag in the submessage header.
type Endian bool

const (
	BigEndian    Endian = false
	LittleEndian Endian = true
)

func (e Endian) order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Writer serializes primitive CDR values with correct alignment padding.
type Writer struct {
	buf    []byte
	endian Endian
}

// NewWriter returns a Writer that appends to an internal buffer using the
// given byte order.
func NewWriter(endian Endian) *Writer {
	return &Writer{endian: endian}
}

// Bytes returns the serialized buffer accumulated so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// align pads the buffer so that the next write starts at a multiple of n
// bytes, per CDR's alignment rule (align to the natural size of the
// primitive being written).
func (w *Writer) align(n int) {
	pad := (n - len(w.buf)%n) % n
	for i := 0; i < pad; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) I8(v int8)    { w.U8(uint8(v)) }
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) U16(v uint16) {
	w.align(2)
	b := make([]byte, 2)
	w.endian.order().PutUint16(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) I16(v int16) { w.U16(uint16(v)) }

func (w *Writer) U32(v uint32) {
	w.align(4)
	b := make([]byte, 4)
	w.endian.order().PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

func (w *Writer) U64(v uint64) {
	w.align(8)
	b := make([]byte, 8)
	w.endian.order().PutUint64(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// RawBytes appends raw bytes with no alignment or length prefix — used for
// fixed-size fields such as a GUID prefix.
func (w *Writer) RawBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// String writes a CDR string: a uint32 length (including the trailing
// NUL) followed by the bytes and a NUL terminator.
func (w *Writer) String(s string) {
	w.U32(uint32(len(s) + 1))
	w.buf = append(w.buf, []byte(s)...)
	w.buf = append(w.buf, 0)
}

// Seq writes the length-prefixed octet sequence used for opaque sample
// payloads.
func (w *Writer) Seq(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader deserializes primitive CDR values from a fixed buffer, tracking
// alignment the same way Writer does.
type Reader struct {
	buf    []byte
	off    int
	endian Endian
}

// NewReader wraps buf for sequential CDR decoding.
func NewReader(buf []byte, endian Endian) *Reader {
	return &Reader{buf: buf, endian: endian}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the current read offset into the underlying buffer.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) align(n int) {
	pad := (n - r.off%n) % n
	r.off += pad
}

func (r *Reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("cdr: short read: need %d bytes, have %d", n, len(r.buf)-r.off)
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *Reader) U16() (uint16, error) {
	r.align(2)
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := r.endian.order().Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	r.align(4)
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := r.endian.order().Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	r.align(8)
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := r.endian.order().Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// RawBytes reads n unaligned raw bytes.
func (r *Reader) RawBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Seq reads a length-prefixed octet sequence.
func (r *Reader) Seq() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.RawBytes(int(n))
}

// String reads a CDR string (length-prefixed, NUL-terminated).
func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b, err := r.RawBytes(int(n))
	if err != nil {
		return "", err
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}
