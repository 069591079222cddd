// Package codec implements the substrate's on-disk record format: a
// single contiguous buffer per record, read back without an
// intermediate struct walk.
//
// Each record encodes to one buffer per Badger value, using a
// fixed-layout binary encoding instead of JSON — a short header (kind tag + field count) followed
// by length-prefixed fields — so Decode can hand back field accessors
// that read straight off the byte slice Badger's Value(func([]byte)
// error) callback already gave us, instead of allocating a new Go
// struct graph on every read. That callback form is the zero-copy
// boundary this package builds on: Badger has already copied out of
// its value log by the time the callback runs. Record.Field returns a
// sub-slice of that buffer without copying; the string accessors
// (Record.String and the NodeRef/EdgeRef/EmbeddingRef methods built on
// it) copy the field into a new Go string.
package codec

import (
	"encoding/binary"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
)

// field is a length-prefixed byte run inside an encoded record.
type field []byte

// Encoder accumulates fields into a single contiguous buffer.
type Encoder struct {
	kind   byte
	fields [][]byte
}

// NewEncoder starts a record of the given kind tag.
func NewEncoder(kind byte) *Encoder {
	return &Encoder{kind: kind}
}

// PutBytes appends a raw byte field.
func (e *Encoder) PutBytes(b []byte) *Encoder {
	e.fields = append(e.fields, b)
	return e
}

// PutString appends a string field.
func (e *Encoder) PutString(s string) *Encoder {
	return e.PutBytes([]byte(s))
}

// PutUint64 appends an 8-byte little-endian field.
func (e *Encoder) PutUint64(v uint64) *Encoder {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return e.PutBytes(buf[:])
}

// PutInt64 appends an 8-byte little-endian field.
func (e *Encoder) PutInt64(v int64) *Encoder {
	return e.PutUint64(uint64(v))
}

// PutFloat32Slice appends a vector of float32 values as a packed
// little-endian field.
func (e *Encoder) PutFloat32Slice(vs []float32) *Encoder {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], float32bits(v))
	}
	return e.PutBytes(buf)
}

// Bytes renders the accumulated fields into one contiguous buffer:
//
//	[kind byte][field count varint]
//	{[length varint][raw bytes]} * field count
func (e *Encoder) Bytes() []byte {
	var header []byte
	header = append(header, e.kind)
	header = binary.AppendUvarint(header, uint64(len(e.fields)))

	size := len(header)
	for _, f := range e.fields {
		size += uvarintLen(uint64(len(f))) + len(f)
	}

	out := make([]byte, 0, size)
	out = append(out, header...)
	for _, f := range e.fields {
		out = binary.AppendUvarint(out, uint64(len(f)))
		out = append(out, f...)
	}
	return out
}

// Record is a parsed, bounds-checked view over an encoded buffer: a
// kind byte plus the byte offsets of each field, computed once at
// Decode time so accessors are O(1) slice operations afterward.
type Record struct {
	kind   byte
	buf    []byte
	fields []field
}

// Kind returns the record's variant tag.
func (r *Record) Kind() byte { return r.kind }

// NumFields returns how many fields were decoded.
func (r *Record) NumFields() int { return len(r.fields) }

// Field returns field i as a raw byte slice borrowed from the
// original buffer passed to Decode. The slice is valid only as long
// as that buffer is valid — callers must not retain it past the
// lifetime of the transaction that produced it without copying.
func (r *Record) Field(i int) ([]byte, error) {
	if i < 0 || i >= len(r.fields) {
		return nil, dberr.ErrCorrupted
	}
	return r.fields[i], nil
}

// String returns field i as a string. The conversion copies the bytes,
// so the result does not borrow the underlying buffer and stays valid
// after the transaction ends.
func (r *Record) String(i int) (string, error) {
	b, err := r.Field(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Uint64 returns field i decoded as a little-endian uint64.
func (r *Record) Uint64(i int) (uint64, error) {
	b, err := r.Field(i)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, dberr.ErrCorrupted
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 returns field i decoded as a little-endian int64.
func (r *Record) Int64(i int) (int64, error) {
	v, err := r.Uint64(i)
	return int64(v), err
}

// Float32Slice returns field i decoded as a packed little-endian
// float32 vector.
func (r *Record) Float32Slice(i int) ([]float32, error) {
	b, err := r.Field(i)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, dberr.ErrCorrupted
	}
	out := make([]float32, len(b)/4)
	for j := range out {
		out[j] = float32frombits(binary.LittleEndian.Uint32(b[j*4:]))
	}
	return out, nil
}

// Decode validates buf's header and field-length table against its
// actual length, returning a Record whose field accessors read
// directly out of buf without copying it. Decode itself performs no
// allocation beyond the field-offset slice.
func Decode(buf []byte) (*Record, error) {
	if len(buf) < 1 {
		return nil, dberr.ErrCorrupted
	}
	kind := buf[0]
	rest := buf[1:]

	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, dberr.ErrCorrupted
	}
	rest = rest[n:]

	fields := make([]field, 0, count)
	for i := uint64(0); i < count; i++ {
		length, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, dberr.ErrCorrupted
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return nil, dberr.ErrCorrupted
		}
		fields = append(fields, rest[:length])
		rest = rest[length:]
	}

	return &Record{kind: kind, buf: buf, fields: fields}, nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
