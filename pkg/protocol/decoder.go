package protocol

import "errors"

// Allocation limits to prevent OOM via malicious or corrupt length prefixes.
const (
	// DefaultMaxAllocation is the default maximum single allocation (4MB).
	// This is far beyond any text value a hub actually sends.
	DefaultMaxAllocation = 4 * 1024 * 1024
)

// Common decoding errors.
var (
	// ErrBufferTooShort reports that the input ended in the middle of a
	// value. It is the recoverable "wait for more bytes" condition: a
	// stream reader should keep the buffer and retry after the next read.
	ErrBufferTooShort = errors.New("protocol: buffer too short")

	// ErrVarintOverflow reports a varint longer than MaxVarintLen bytes.
	ErrVarintOverflow = errors.New("protocol: varint overflow")

	// ErrAllocationTooLarge reports a length prefix beyond the allocation
	// limit. A corrupt length byte must not make the reader wait for
	// gigabytes that will never arrive, so this is a corruption error,
	// not a short-buffer condition.
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
)

// Decoder is a binary decoder that reads from a byte buffer.
type Decoder struct {
	buf []byte
	pos int

	// maxAlloc bounds single length-prefixed allocations. Zero means
	// DefaultMaxAllocation.
	maxAlloc int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// SetMaxAllocation overrides the allocation limit for length-prefixed
// reads. Values <= 0 restore the default.
func (d *Decoder) SetMaxAllocation(n int) {
	d.maxAlloc = n
}

func (d *Decoder) allocLimit() uint64 {
	if d.maxAlloc > 0 {
		return uint64(d.maxAlloc)
	}
	return DefaultMaxAllocation
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrBufferTooShort
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, ErrBufferTooShort
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadUvarint reads an unsigned varint.
func (d *Decoder) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint

	for {
		if d.pos >= len(d.buf) {
			return 0, ErrBufferTooShort
		}
		b := d.buf[d.pos]
		d.pos++
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, ErrVarintOverflow
		}
	}
}

// ReadSvarint reads a signed varint using zig-zag decoding.
func (d *Decoder) ReadSvarint() (int64, error) {
	uv, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	v := int64(uv >> 1)
	if uv&1 != 0 {
		v = ^v
	}
	return v, nil
}

// ReadString reads a length-prefixed string.
// The bytes are preserved as-is; invalid UTF-8 is not an error here.
// Returns ErrAllocationTooLarge if the length prefix exceeds the limit.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	// Allocation limit check before the bounds check: a corrupt huge
	// length is corruption now, not a value still in flight.
	if length > d.allocLimit() {
		return "", ErrAllocationTooLarge
	}
	if length > uint64(d.Remaining()) {
		return "", ErrBufferTooShort
	}
	n := int(length)
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

// ReadUint32 reads a uint32 in big-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrBufferTooShort
	}
	v := uint32(d.buf[d.pos])<<24 | uint32(d.buf[d.pos+1])<<16 |
		uint32(d.buf[d.pos+2])<<8 | uint32(d.buf[d.pos+3])
	d.pos += 4
	return v, nil
}
