package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Wire type tags. Every encoded value starts with one of these bytes.
const (
	TagNull        byte = 0x00
	TagEmptyList   byte = 0x01
	TagTrue        byte = 0x02
	TagFalse       byte = 0x03
	TagInt         byte = 0x04
	TagHexBlob     byte = 0x05
	TagTimestamp   byte = 0x06
	TagText        byte = 0x11
	TagComposite   byte = 0x12
	TagInternedKey byte = 0x13
)

// HexBlobLen is the fixed payload size of a hex blob after its index byte.
const HexBlobLen = 8

// Value encoding errors.
var (
	ErrUnknownTag        = errors.New("protocol: unknown type tag")
	ErrIntegerOutOfRange = errors.New("protocol: integer outside int32 range")
	ErrCompositeTooLarge = errors.New("protocol: composite exceeds 255 entries")
)

// Kind identifies the in-memory variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindEmptyList
	KindBool
	KindInt
	KindHexBlob
	KindTimestamp
	KindText
	KindList
	KindMap
	KindKey
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindEmptyList:
		return "EmptyList"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindHexBlob:
		return "HexBlob"
	case KindTimestamp:
		return "Timestamp"
	case KindText:
		return "Text"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindKey:
		return "Key"
	default:
		return "Unknown"
	}
}

// Entry is one key/value pair of a map-form Value. Entry order is
// preserved so a decoded map re-encodes to the original bytes.
type Entry struct {
	Key Value
	Val Value
}

// Value is one node of a value tree, the unit the wire codec works in.
// Exactly one variant is active, selected by Kind; the payload fields of
// the other variants are zero. Composites arrive from the wire as KindList
// when their keys are exactly 0..n-1 in order and as KindMap otherwise.
type Value struct {
	Kind Kind

	Bool  bool             // KindBool
	Int   int64            // KindInt (int32 range on the wire), KindTimestamp seconds
	Index uint8            // KindHexBlob / KindTimestamp index byte, KindKey id
	Hex   [HexBlobLen]byte // KindHexBlob payload
	Text  string           // KindText bytes, not necessarily valid UTF-8
	List  []Value          // KindList elements
	Map   []Entry          // KindMap entries, ordered
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// EmptyList returns the empty-container sentinel (wire tag 0x01).
func EmptyList() Value {
	return Value{Kind: KindEmptyList}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Int returns an integer value. The wire restricts integers to the int32
// range; out-of-range values fail at encode time, not here.
func Int(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

// HexBlob returns a fixed 8-byte blob with its index byte.
func HexBlob(index uint8, data [HexBlobLen]byte) Value {
	return Value{Kind: KindHexBlob, Index: index, Hex: data}
}

// Timestamp returns a timestamp value with its index byte.
func Timestamp(index uint8, secs int64) Value {
	return Value{Kind: KindTimestamp, Index: index, Int: secs}
}

// Text returns a text value. The string may carry arbitrary bytes.
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// ListOf returns a sequence value. With no items it encodes as the
// empty-container tag.
func ListOf(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}

// MapOf returns a map value with the given entries in order.
func MapOf(entries ...Entry) Value {
	return Value{Kind: KindMap, Map: entries}
}

// Field builds a map entry with a text key.
func Field(name string, v Value) Entry {
	return Entry{Key: Text(name), Val: v}
}

// Key returns an interned-key value (wire tag 0x13).
func Key(id uint8) Value {
	return Value{Kind: KindKey, Index: id}
}

// EncodeTo appends the tagged wire encoding of v to e.
// Map keys whose text is a canonical table name (or an explicit
// "enum:<id>" spelling) are interned to the one-byte key form; everything
// else encodes exactly as constructed.
func (v Value) EncodeTo(e *Encoder) error {
	switch v.Kind {
	case KindNull:
		e.WriteByte(TagNull)
	case KindEmptyList:
		e.WriteByte(TagEmptyList)
	case KindBool:
		if v.Bool {
			e.WriteByte(TagTrue)
		} else {
			e.WriteByte(TagFalse)
		}
	case KindInt:
		if v.Int < math.MinInt32 || v.Int > math.MaxInt32 {
			return fmt.Errorf("%w: %d", ErrIntegerOutOfRange, v.Int)
		}
		e.WriteByte(TagInt)
		e.WriteSvarint(v.Int)
	case KindHexBlob:
		e.WriteByte(TagHexBlob)
		e.WriteByte(v.Index)
		e.WriteBytes(v.Hex[:])
	case KindTimestamp:
		e.WriteByte(TagTimestamp)
		e.WriteByte(v.Index)
		e.WriteSvarint(v.Int)
	case KindText:
		e.WriteByte(TagText)
		e.WriteString(v.Text)
	case KindList:
		if len(v.List) == 0 {
			e.WriteByte(TagEmptyList)
			return nil
		}
		if len(v.List) > 255 {
			return fmt.Errorf("%w: %d items", ErrCompositeTooLarge, len(v.List))
		}
		e.WriteByte(TagComposite)
		e.WriteByte(byte(len(v.List)))
		for i, item := range v.List {
			// Sequences ride the composite tag with 0..n-1 keys.
			e.WriteByte(TagInt)
			e.WriteSvarint(int64(i))
			if err := item.EncodeTo(e); err != nil {
				return err
			}
		}
	case KindMap:
		if len(v.Map) == 0 {
			e.WriteByte(TagEmptyList)
			return nil
		}
		if len(v.Map) > 255 {
			return fmt.Errorf("%w: %d entries", ErrCompositeTooLarge, len(v.Map))
		}
		e.WriteByte(TagComposite)
		e.WriteByte(byte(len(v.Map)))
		for _, en := range v.Map {
			if err := encodeKey(en.Key, e); err != nil {
				return err
			}
			if err := en.Val.EncodeTo(e); err != nil {
				return err
			}
		}
	case KindKey:
		e.WriteByte(TagInternedKey)
		e.WriteByte(v.Index)
	default:
		return fmt.Errorf("%w: kind %d", ErrUnknownTag, v.Kind)
	}
	return nil
}

// encodeKey encodes a map key, interning known text keys to the one-byte
// form the hub expects for its well-known field names.
func encodeKey(k Value, e *Encoder) error {
	if k.Kind == KindText {
		if id, ok := internFromString(k.Text); ok {
			e.WriteByte(TagInternedKey)
			e.WriteByte(id)
			return nil
		}
	}
	return k.EncodeTo(e)
}

// Pack encodes v as a standalone tagged byte sequence.
func Pack(v Value) ([]byte, error) {
	e := NewEncoder()
	if err := v.EncodeTo(e); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// DecodeValueFrom reads one tagged value from d.
// Returns ErrBufferTooShort when the input ends mid-value and ErrUnknownTag
// for an unrecognized tag byte.
func DecodeValueFrom(d *Decoder) (Value, error) {
	return decodeValue(d, 0)
}

func decodeValue(d *Decoder, depth int) (Value, error) {
	tag, err := d.ReadByte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case TagNull:
		return Null(), nil
	case TagEmptyList:
		return EmptyList(), nil
	case TagTrue:
		return Bool(true), nil
	case TagFalse:
		return Bool(false), nil
	case TagInt:
		n, err := d.ReadSvarint()
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case TagHexBlob:
		idx, err := d.ReadByte()
		if err != nil {
			return Value{}, err
		}
		b, err := d.ReadBytes(HexBlobLen)
		if err != nil {
			return Value{}, err
		}
		var data [HexBlobLen]byte
		copy(data[:], b)
		return HexBlob(idx, data), nil
	case TagTimestamp:
		idx, err := d.ReadByte()
		if err != nil {
			return Value{}, err
		}
		secs, err := d.ReadSvarint()
		if err != nil {
			return Value{}, err
		}
		return Timestamp(idx, secs), nil
	case TagText:
		s, err := d.ReadString()
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil
	case TagComposite:
		return decodeCompositeBody(d, depth+1)
	case TagInternedKey:
		id, err := d.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Key(id), nil
	default:
		return Value{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, tag)
	}
}

// Parse decodes one tagged value from the start of buf.
func Parse(buf []byte) (Value, error) {
	return DecodeValueFrom(NewDecoder(buf))
}

// decodeCompositeBody reads a composite payload (count byte plus count
// tagged key/value pairs); the 0x12 tag itself has already been consumed,
// or is implicit for frame-payload top-level values. The result is a
// sequence when the keys are exactly the integers 0..n-1 in that order,
// and an ordered mapping otherwise.
func decodeCompositeBody(d *Decoder, depth int) (Value, error) {
	if depth > MaxValueDepth {
		return Value{}, ErrMaxDepthExceeded
	}
	count, err := d.ReadByte()
	if err != nil {
		return Value{}, err
	}
	if count == 0 {
		// Hubs write zero-element composites as tag 0x01, but accept the
		// long spelling anyway.
		return EmptyList(), nil
	}
	entries := make([]Entry, 0, count)
	for i := 0; i < int(count); i++ {
		k, err := decodeValue(d, depth)
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(d, depth)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Entry{Key: k, Val: v})
	}
	if isSequence(entries) {
		items := make([]Value, len(entries))
		for i, en := range entries {
			items[i] = en.Val
		}
		return Value{Kind: KindList, List: items}, nil
	}
	return Value{Kind: KindMap, Map: entries}, nil
}

// isSequence reports whether the entry keys are exactly 0..n-1 in order.
func isSequence(entries []Entry) bool {
	for i, en := range entries {
		if en.Key.Kind != KindInt || en.Key.Int != int64(i) {
			return false
		}
	}
	return len(entries) > 0
}

// Normalize returns the presentation form of a parsed tree: interned keys
// become their canonical names, literal "enum:<name>" text is stripped to
// <name>, and empty containers collapse to the empty-list sentinel. It is
// a pure post-parse pass; structural parsing never consults it.
func Normalize(v Value) Value {
	switch v.Kind {
	case KindKey:
		return Text(internedString(v.Index))
	case KindText:
		if rest, ok := strings.CutPrefix(v.Text, "enum:"); ok {
			return Text(rest)
		}
		return v
	case KindList:
		if len(v.List) == 0 {
			return EmptyList()
		}
		items := make([]Value, len(v.List))
		for i, item := range v.List {
			items[i] = Normalize(item)
		}
		return Value{Kind: KindList, List: items}
	case KindMap:
		if len(v.Map) == 0 {
			return EmptyList()
		}
		entries := make([]Entry, len(v.Map))
		for i, en := range v.Map {
			entries[i] = Entry{Key: Normalize(en.Key), Val: Normalize(en.Val)}
		}
		return Value{Kind: KindMap, Map: entries}
	default:
		return v
	}
}

// keyString renders a key value for lookups and native conversion.
func keyString(k Value) string {
	switch k.Kind {
	case KindText:
		return k.Text
	case KindKey:
		return internedString(k.Index)
	case KindInt:
		return strconv.FormatInt(k.Int, 10)
	default:
		return k.String()
	}
}

// Lookup finds the value for a field name in a map-form Value. Interned
// keys match their canonical names, integer keys their decimal spelling.
func (v Value) Lookup(name string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, en := range v.Map {
		if keyString(en.Key) == name {
			return en.Val, true
		}
	}
	return Value{}, false
}

// TextOr returns the text payload, or def for non-text values.
func (v Value) TextOr(def string) string {
	if v.Kind == KindText {
		return v.Text
	}
	return def
}

// IntOr returns the integer payload, or def for non-integer values.
// Timestamps count as integers here.
func (v Value) IntOr(def int64) int64 {
	if v.Kind == KindInt || v.Kind == KindTimestamp {
		return v.Int
	}
	return def
}

// String renders the value compactly for logs and the decode tool.
func (v Value) String() string {
	var b strings.Builder
	v.writeString(&b)
	return b.String()
}

func (v Value) writeString(b *strings.Builder) {
	switch v.Kind {
	case KindNull:
		b.WriteString("null")
	case KindEmptyList:
		b.WriteString("[]")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case KindHexBlob:
		fmt.Fprintf(b, "hex(%d,%x)", v.Index, v.Hex)
	case KindTimestamp:
		fmt.Fprintf(b, "ts(%d,%d)", v.Index, v.Int)
	case KindText:
		b.WriteString(strconv.Quote(v.Text))
	case KindList:
		b.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				b.WriteByte(',')
			}
			item.writeString(b)
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		for i, en := range v.Map {
			if i > 0 {
				b.WriteByte(',')
			}
			en.Key.writeString(b)
			b.WriteByte(':')
			en.Val.writeString(b)
		}
		b.WriteByte('}')
	case KindKey:
		b.WriteString(internedString(v.Index))
	default:
		b.WriteString("?")
	}
}

// Native converts a tree to plain Go values: nil, bool, int64, string,
// []any and map[string]any. Hex blobs flatten to their hex spelling and
// timestamps to their seconds value. Duplicate map keys keep the last
// entry, matching how the hub itself resolves them.
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindEmptyList:
		return []any{}
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindHexBlob:
		return fmt.Sprintf("%x", v.Hex)
	case KindTimestamp:
		return v.Int
	case KindText:
		return v.Text
	case KindList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item.Native()
		}
		return items
	case KindMap:
		m := make(map[string]any, len(v.Map))
		for _, en := range v.Map {
			m[keyString(en.Key)] = en.Val.Native()
		}
		return m
	case KindKey:
		return internedString(v.Index)
	default:
		return nil
	}
}

// FromNative builds a Value from plain Go data. Map keys are sorted so the
// encoding of caller-supplied maps is deterministic. An unsupported kind
// does not abort the conversion: it becomes Null and a diagnostic is
// logged, which mirrors how the hub protocol treats foreign values.
func FromNative(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return Int(int64(x))
		}
	case uint64:
		if x <= math.MaxInt64 {
			return Int(int64(x))
		}
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt32 && x <= math.MaxInt32 {
			return Int(int64(x))
		}
	case string:
		return Text(x)
	case time.Time:
		return Timestamp(0, x.Unix())
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromNative(item)
		}
		return Value{Kind: KindList, List: items}
	case map[string]any:
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]Entry, len(names))
		for i, name := range names {
			entries[i] = Field(name, FromNative(x[name]))
		}
		return Value{Kind: KindMap, Map: entries}
	}
	slog.Default().Warn("protocol: unsupported value kind, encoding as null",
		"type", fmt.Sprintf("%T", v))
	return Null()
}
