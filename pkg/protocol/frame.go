package protocol

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// Frame layout constants.
const (
	// FrameHeaderLen is the fixed header size: 4 magic bytes, 2 reserved
	// bytes, 4 length bytes. A buffer shorter than this cannot be judged.
	FrameHeaderLen = 10

	// CompressThreshold is the payload size at which the encoder switches
	// to the compressed frame form.
	CompressThreshold = 1000

	// MaxFrameSize caps the declared payload length. A corrupt length
	// field must not leave the reader waiting for gigabytes.
	MaxFrameSize = 16 * 1024 * 1024
)

// Frame magics, each followed on the wire by two reserved zero bytes.
const (
	MagicPlain      = "GL00"
	MagicCompressed = "ZZ00"
)

var (
	plainPrefix      = []byte{'G', 'L', '0', '0', 0x00, 0x00}
	compressedPrefix = []byte{'Z', 'Z', '0', '0', 0x00, 0x00}
)

// Frame errors.
var (
	ErrInvalidTopLevelValue = errors.New("protocol: top-level value must pack as a composite")
	ErrBadMagic             = errors.New("protocol: bad frame magic")
	ErrDecompression        = errors.New("protocol: frame decompression failed")
	ErrCorruptFrame         = errors.New("protocol: corrupt frame payload")
	ErrFrameTooLarge        = errors.New("protocol: frame payload too large")
)

// EncodeFrame encodes one or more top-level values as a single frame.
// Each value must pack as a composite; its leading 0x12 tag byte is
// stripped, and the bodies are concatenated into the frame payload. When
// the payload reaches CompressThreshold bytes the whole plain frame is
// gzip-compressed and wrapped in the compressed frame form instead.
func EncodeFrame(values []Value) ([]byte, error) {
	payload := NewEncoderWithCap(256)
	scratch := NewEncoder()
	for _, v := range values {
		scratch.Reset()
		if err := v.EncodeTo(scratch); err != nil {
			return nil, err
		}
		b := scratch.Bytes()
		if len(b) == 0 || b[0] != TagComposite {
			return nil, fmt.Errorf("%w: got %s", ErrInvalidTopLevelValue, v.Kind)
		}
		payload.WriteBytes(b[1:])
	}
	if payload.Len() > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	plain := NewEncoderWithCap(FrameHeaderLen + payload.Len())
	plain.WriteBytes(plainPrefix)
	plain.WriteUint32(uint32(payload.Len()))
	plain.WriteBytes(payload.Bytes())
	if payload.Len() < CompressThreshold {
		return plain.Bytes(), nil
	}

	// Compressed form: header with the uncompressed length, then the
	// entire plain frame run through gzip.
	var out bytes.Buffer
	out.Grow(FrameHeaderLen + payload.Len()/2)
	out.Write(compressedPrefix)
	n := plain.Len()
	out.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(plain.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return out.Bytes(), nil
}

// DecodeFrame decodes the first complete frame at the start of buf.
// It returns the number of bytes consumed so the caller can keep any
// trailing bytes (the start of the next frame) for the next read.
//
// ErrBufferTooShort means the frame is not complete yet and the caller
// should wait for more input without discarding the buffer. Every other
// error abandons the frame: ErrDecompression on a bad gzip stream,
// ErrBadMagic on an unrecognized prefix, ErrCorruptFrame and the value
// codec errors on payload damage.
func DecodeFrame(buf []byte) (int, []Value, error) {
	if len(buf) < FrameHeaderLen {
		return 0, nil, ErrBufferTooShort
	}
	switch {
	case bytes.HasPrefix(buf, plainPrefix):
		return decodePlain(buf)
	case bytes.HasPrefix(buf, compressedPrefix):
		return decodeCompressed(buf)
	default:
		return 0, nil, ErrBadMagic
	}
}

func decodePlain(buf []byte) (int, []Value, error) {
	n := int(buf[6])<<24 | int(buf[7])<<16 | int(buf[8])<<8 | int(buf[9])
	if n > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	if len(buf) < FrameHeaderLen+n {
		return 0, nil, ErrBufferTooShort
	}
	values, err := parsePayload(buf[FrameHeaderLen : FrameHeaderLen+n])
	if err != nil {
		return 0, nil, err
	}
	return FrameHeaderLen + n, values, nil
}

func decodeCompressed(buf []byte) (int, []Value, error) {
	declared := int(buf[6])<<24 | int(buf[7])<<16 | int(buf[8])<<8 | int(buf[9])
	if declared > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	// bytes.Reader implements io.ByteReader, so flate reads exactly the
	// bytes it needs and src.Len() afterwards tells us where the gzip
	// stream ended and the next frame begins.
	src := bytes.NewReader(buf[FrameHeaderLen:])
	zr, err := gzip.NewReader(src)
	if err != nil {
		return 0, nil, classifyGzip(err)
	}
	defer zr.Close()
	zr.Multistream(false)

	// Inflate at most declared+1 bytes: anything past the declared
	// length is a mismatch, and an unbounded read would let a gzip bomb
	// through.
	inflated, err := io.ReadAll(io.LimitReader(zr, int64(declared)+1))
	if err != nil {
		return 0, nil, classifyGzip(err)
	}
	// Drain to the end of the gzip member so the checksum is verified
	// and src is positioned exactly past the trailer.
	var probe [1]byte
	switch _, err := zr.Read(probe[:]); {
	case err == nil:
		return 0, nil, fmt.Errorf("%w: inflated size exceeds declared %d", ErrDecompression, declared)
	case errors.Is(err, io.EOF):
		// Stream complete.
	default:
		return 0, nil, classifyGzip(err)
	}
	if len(inflated) != declared {
		return 0, nil, fmt.Errorf("%w: inflated %d bytes, declared %d", ErrDecompression, len(inflated), declared)
	}
	consumed := len(buf) - src.Len()

	// The inflated bytes are a complete plain frame.
	inner, values, err := DecodeFrame(inflated)
	if err != nil {
		if errors.Is(err, ErrBufferTooShort) {
			// The inflated frame is fully delimited; a shortfall inside
			// it is damage, not missing input.
			return 0, nil, fmt.Errorf("%w: truncated inner frame", ErrCorruptFrame)
		}
		return 0, nil, err
	}
	if inner != len(inflated) {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes in inner frame", ErrCorruptFrame, len(inflated)-inner)
	}
	return consumed, values, nil
}

// parsePayload splits a complete plain-frame payload into its top-level
// values. Each one is a composite body with its tag byte stripped, so the
// parser enters composite mode directly.
func parsePayload(p []byte) ([]Value, error) {
	d := NewDecoder(p)
	var values []Value
	for !d.EOF() {
		v, err := decodeCompositeBody(d, 1)
		if err != nil {
			if errors.Is(err, ErrBufferTooShort) {
				// The payload is fully delimited by the frame header;
				// running past its end is corruption.
				return nil, fmt.Errorf("%w: value runs past frame end", ErrCorruptFrame)
			}
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// classifyGzip separates "gzip stream cut short" (more bytes may still
// arrive) from genuine decompression failures.
func classifyGzip(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrBufferTooShort
	}
	return fmt.Errorf("%w: %v", ErrDecompression, err)
}
