package protocol

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"testing"
)

// Hostile-input tests. Everything here decodes attacker-shaped bytes and
// must fail with a classified error in bounded time and memory.

func TestOversizedTextAllocation(t *testing.T) {
	// A text value claiming a huge length. The claim alone must trip the
	// limit; the decoder never waits for bytes this large.
	e := NewEncoder()
	e.WriteByte(TagText)
	e.WriteUvarint(DefaultMaxAllocation + 1)

	_, err := Parse(e.Bytes())
	if !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("Parse(oversized text) error = %v, want ErrAllocationTooLarge", err)
	}

	// At the limit the claim itself is fine; the missing bytes are a
	// short buffer.
	e.Reset()
	e.WriteByte(TagText)
	e.WriteUvarint(DefaultMaxAllocation)
	_, err = Parse(e.Bytes())
	if !errors.Is(err, ErrBufferTooShort) {
		t.Errorf("Parse(at-limit text) error = %v, want ErrBufferTooShort", err)
	}
}

func TestEncodeFrameSizeLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates a frame-sized payload")
	}
	v := MapOf(Field("data", Text(strings.Repeat("x", MaxFrameSize+16))))
	if _, err := EncodeFrame([]Value{v}); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("EncodeFrame(oversized) error = %v, want ErrFrameTooLarge", err)
	}
}

func TestGzipBombContained(t *testing.T) {
	// A compressed frame declaring 1000 bytes but inflating to 32MB.
	// The decoder must stop at the declared size plus one byte, not
	// materialize the bomb.
	var out bytes.Buffer
	out.Write([]byte{'Z', 'Z', '0', '0', 0x00, 0x00, 0x00, 0x00, 0x03, 0xE8})
	zw := gzip.NewWriter(&out)
	zeros := make([]byte, 1<<20)
	for i := 0; i < 32; i++ {
		if _, err := zw.Write(zeros); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	_, _, err := DecodeFrame(out.Bytes())
	if !errors.Is(err, ErrDecompression) {
		t.Errorf("DecodeFrame(bomb) error = %v, want ErrDecompression", err)
	}
}

func TestFrameDepthLimit(t *testing.T) {
	// A frame whose payload nests composites past the depth limit. Each
	// level is a one-entry composite with a null key.
	nested := []byte{0x00}
	for i := 0; i < MaxValueDepth+8; i++ {
		nested = append([]byte{0x12, 0x01, 0x00}, nested...)
	}
	payload := nested[1:] // top-level composite body, tag stripped

	frame := make([]byte, 0, FrameHeaderLen+len(payload))
	frame = append(frame, 'G', 'L', '0', '0', 0x00, 0x00)
	n := len(payload)
	frame = append(frame, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	frame = append(frame, payload...)

	if _, _, err := DecodeFrame(frame); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("DecodeFrame(deep nesting) error = %v, want ErrMaxDepthExceeded", err)
	}
}

func TestLyingCompositeCount(t *testing.T) {
	// A composite declaring 255 entries with two actually present. The
	// frame is complete, so the shortfall is corruption, not streaming.
	payload := []byte{
		0xFF,       // claims 255 entries
		0x00, 0x00, // entry 0
		0x00, 0x00, // entry 1
	}
	frame := append([]byte{'G', 'L', '0', '0', 0x00, 0x00, 0x00, 0x00, 0x00, byte(len(payload))}, payload...)

	if _, _, err := DecodeFrame(frame); !errors.Is(err, ErrCorruptFrame) {
		t.Errorf("DecodeFrame(lying count) error = %v, want ErrCorruptFrame", err)
	}
}

func TestValidInputsStillWork(t *testing.T) {
	t.Run("moderate nesting", func(t *testing.T) {
		v := Int(1)
		for i := 0; i < 30; i++ {
			v = MapOf(Field("inner", v))
		}
		parsed, err := Parse(mustPack(t, v))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		for i := 0; i < 30; i++ {
			inner, ok := parsed.Lookup("inner")
			if !ok {
				t.Fatalf("level %d: inner missing", i)
			}
			parsed = inner
		}
		if parsed.IntOr(0) != 1 {
			t.Errorf("innermost = %v, want 1", parsed)
		}
	})

	t.Run("large text under limit", func(t *testing.T) {
		text := strings.Repeat("y", 100_000)
		frame := mustEncodeFrame(t, []Value{MapOf(Field("data", Text(text)))})
		if !bytes.HasPrefix(frame, []byte(MagicCompressed)) {
			t.Fatalf("expected compressed frame for %d-byte text", len(text))
		}
		_, values, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame() error = %v", err)
		}
		if v, _ := values[0].Lookup("data"); len(v.TextOr("")) != len(text) {
			t.Errorf("text came back %d bytes, want %d", len(v.TextOr("")), len(text))
		}
	})

	t.Run("max size composites", func(t *testing.T) {
		items := make([]Value, 255)
		for i := range items {
			items[i] = Int(int64(i))
		}
		parsed, err := Parse(mustPack(t, ListOf(items...)))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if parsed.Kind != KindList || len(parsed.List) != 255 {
			t.Errorf("parsed %v with %d items, want 255-item sequence", parsed.Kind, len(parsed.List))
		}
	})
}
