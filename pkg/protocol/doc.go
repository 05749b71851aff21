// Package protocol implements the binary wire protocol spoken by GateLink
// hubs on their local TCP port.
//
// The format is a compact tagged-value serialization under a length-prefixed
// frame layer. Outbound command packets and inbound state/delta frames use
// the same encoding in both directions.
//
// # Wire Format
//
// Every frame starts with a 10-byte header:
//
//	┌──────────────┬──────────────┬──────────────────────────────┐
//	│ Magic        │ Reserved     │ Payload Length               │
//	│ (4 bytes)    │ (2 bytes)    │ (4 bytes, big-endian)        │
//	└──────────────┴──────────────┴──────────────────────────────┘
//
//   - "GL00": plain frame; the length counts the payload bytes that follow.
//   - "ZZ00": compressed frame; the length is the uncompressed size and the
//     body is an entire plain frame run through gzip. The encoder switches
//     to this form once the payload reaches 1000 bytes.
//
// The payload is one or more concatenated composite bodies, each the
// encoding of a top-level composite value with its leading 0x12 tag byte
// stripped.
//
// # Value Encoding
//
// Each value is a single tag byte followed by a tag-specific payload:
//
//   - 0x00: null
//   - 0x01: empty container
//   - 0x02 / 0x03: boolean true / false
//   - 0x04: integer, zig-zag varint, int32 range
//   - 0x05: hex blob, one index byte plus 8 raw bytes
//   - 0x06: timestamp, one index byte plus a zig-zag varint
//   - 0x11: text, varint byte length plus raw bytes
//   - 0x12: composite, one count byte plus count tagged key/value pairs
//   - 0x13: interned key, one byte indexing the static key table
//
// A composite whose keys are exactly 0..n-1 in order is a sequence;
// anything else is an ordered mapping. Well-known field names (val, type,
// devid, _chd, ...) travel as one-byte interned keys and are resolved back
// to text by Normalize after parsing.
//
// # Usage Example
//
//	// Build and encode an outbound command.
//	pf := NewPacketFactory()
//	pkt, err := pf.SetSingleIO("N1", "dev1", "L1", 129, 1)
//	if err != nil {
//	    // Handle error
//	}
//
//	// Split frames back out of a receive buffer.
//	consumed, values, err := DecodeFrame(buf)
//	switch {
//	case errors.Is(err, ErrBufferTooShort):
//	    // Incomplete frame: keep the buffer and read more.
//	case err != nil:
//	    // Corrupt input: drop the buffer and resynchronize.
//	default:
//	    buf = buf[consumed:]
//	    for _, v := range values {
//	        fmt.Println(Normalize(v))
//	    }
//	}
//
// # File Structure
//
// The package is organized as follows:
//
//   - varint.go: Varint and zig-zag encoding/decoding
//   - encoder.go: Binary encoder
//   - decoder.go: Binary decoder
//   - value.go: Tagged value model, parse and normalize
//   - keytable.go: Interned key table
//   - frame.go: Frame assembly, splitting and gzip handling
//   - packet.go: Outbound command packet builders
package protocol
