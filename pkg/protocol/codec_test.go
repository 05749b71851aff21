package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncoderDecoder(t *testing.T) {
	e := NewEncoder()

	e.WriteByte(0x12)
	e.WriteBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	e.WriteUvarint(12345)
	e.WriteSvarint(-9876)
	e.WriteString("dev1")
	e.WriteUint32(0x000003E7)

	d := NewDecoder(e.Bytes())

	b, err := d.ReadByte()
	if err != nil || b != 0x12 {
		t.Errorf("ReadByte() = %x, %v; want 0x12, nil", b, err)
	}

	bs, err := d.ReadBytes(4)
	if err != nil || !bytes.Equal(bs, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("ReadBytes(4) = %x, %v; want deadbeef, nil", bs, err)
	}

	uv, err := d.ReadUvarint()
	if err != nil || uv != 12345 {
		t.Errorf("ReadUvarint() = %d, %v; want 12345, nil", uv, err)
	}

	sv, err := d.ReadSvarint()
	if err != nil || sv != -9876 {
		t.Errorf("ReadSvarint() = %d, %v; want -9876, nil", sv, err)
	}

	s, err := d.ReadString()
	if err != nil || s != "dev1" {
		t.Errorf("ReadString() = %q, %v; want \"dev1\", nil", s, err)
	}

	u32, err := d.ReadUint32()
	if err != nil || u32 != 0x000003E7 {
		t.Errorf("ReadUint32() = %x, %v; want 0x3E7, nil", u32, err)
	}

	if !d.EOF() {
		t.Errorf("Expected EOF, but %d bytes remaining", d.Remaining())
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoder()
	e.WriteString("test")
	if e.Len() == 0 {
		t.Error("Encoder should have data after write")
	}

	e.Reset()
	if e.Len() != 0 {
		t.Error("Encoder should be empty after reset")
	}

	e.WriteString("new data")
	if e.Len() == 0 {
		t.Error("Encoder should have data after write following reset")
	}
}

func TestEncoderWithCap(t *testing.T) {
	e := NewEncoderWithCap(1024)
	if cap(e.Bytes()) < 1024 {
		t.Errorf("Expected capacity >= 1024, got %d", cap(e.Bytes()))
	}
}

func TestEncoderUint32BigEndian(t *testing.T) {
	e := NewEncoder()
	e.WriteUint32(0x0A0B0C0D)

	want := []byte{0x0A, 0x0B, 0x0C, 0x0D}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("WriteUint32 = %x, want %x", e.Bytes(), want)
	}
}

func TestDecoderShortBuffer(t *testing.T) {
	tests := []struct {
		name string
		read func(d *Decoder) error
	}{
		{"byte", func(d *Decoder) error { _, err := d.ReadByte(); return err }},
		{"bytes", func(d *Decoder) error { _, err := d.ReadBytes(3); return err }},
		{"uvarint", func(d *Decoder) error { _, err := d.ReadUvarint(); return err }},
		{"svarint", func(d *Decoder) error { _, err := d.ReadSvarint(); return err }},
		{"string", func(d *Decoder) error { _, err := d.ReadString(); return err }},
		{"uint32", func(d *Decoder) error { _, err := d.ReadUint32(); return err }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.read(NewDecoder(nil)); !errors.Is(err, ErrBufferTooShort) {
				t.Errorf("%s on empty buffer = %v, want ErrBufferTooShort", tc.name, err)
			}
		})
	}

	// Length prefix present, bytes missing.
	d := NewDecoder([]byte{10})
	if _, err := d.ReadString(); !errors.Is(err, ErrBufferTooShort) {
		t.Errorf("ReadString with missing bytes = %v, want ErrBufferTooShort", err)
	}
}

func TestDecoderVarintOverflow(t *testing.T) {
	// 10 continuation bytes and counting: more than 64 bits of payload.
	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0x80
	}
	d := NewDecoder(buf)
	if _, err := d.ReadUvarint(); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("ReadUvarint(overflow) = %v, want ErrVarintOverflow", err)
	}
}

func TestDecoderAllocationLimit(t *testing.T) {
	// A giant claimed length must fail as corruption even though the
	// buffer is also short. Waiting for 100MB that never arrives would
	// wedge the stream reader.
	e := NewEncoder()
	e.WriteUvarint(100 * 1024 * 1024)
	d := NewDecoder(e.Bytes())
	if _, err := d.ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("ReadString(huge length) = %v, want ErrAllocationTooLarge", err)
	}

	// A custom limit tightens the bound.
	e.Reset()
	e.WriteString("four")
	d = NewDecoder(e.Bytes())
	d.SetMaxAllocation(2)
	if _, err := d.ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("ReadString over custom limit = %v, want ErrAllocationTooLarge", err)
	}
}

func TestDecoderPosition(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3, 4, 5})

	if d.Remaining() != 5 {
		t.Errorf("Initial Remaining() = %d, want 5", d.Remaining())
	}

	d.ReadByte()
	if d.Position() != 1 {
		t.Errorf("Position() after ReadByte = %d, want 1", d.Position())
	}

	d.ReadBytes(2)
	if d.Remaining() != 2 {
		t.Errorf("Remaining() after ReadBytes(2) = %d, want 2", d.Remaining())
	}
	if d.EOF() {
		t.Error("EOF() = true with bytes remaining")
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{"empty", ""},
		{"ascii", "LivingRoom"},
		{"unicode", "спальня"},
		{"binary", "\x00\xFF\x80ok"},
		{"invalid_utf8", string([]byte{0xC3, 0x28})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			e.WriteString(tc.s)

			d := NewDecoder(e.Bytes())
			got, err := d.ReadString()
			if err != nil {
				t.Fatalf("ReadString() error = %v", err)
			}
			if got != tc.s {
				t.Errorf("ReadString() = %q, want %q", got, tc.s)
			}
		})
	}
}

func BenchmarkEncoderWrite(b *testing.B) {
	e := NewEncoder()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Reset()
		e.WriteByte(0x12)
		e.WriteUvarint(12345)
		e.WriteSvarint(-9876)
		e.WriteString("LivingRoom")
		e.WriteUint32(0x12345678)
	}
}

func BenchmarkDecoderRead(b *testing.B) {
	e := NewEncoder()
	e.WriteByte(0x12)
	e.WriteUvarint(12345)
	e.WriteSvarint(-9876)
	e.WriteString("LivingRoom")
	e.WriteUint32(0x12345678)
	data := e.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := NewDecoder(data)
		d.ReadByte()
		d.ReadUvarint()
		d.ReadSvarint()
		d.ReadString()
		d.ReadUint32()
	}
}
