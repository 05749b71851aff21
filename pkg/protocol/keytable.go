package protocol

import (
	"strconv"
	"strings"
)

// The hub shrinks frequently-repeated map keys by sending a one-byte id
// (tag 0x13) instead of the spelled-out field name. The table below is the
// protocol's fixed id<->name assignment; it is shared by the encoder
// (name -> id when the name is known) and the decoder (id -> name during
// normalization). There is no runtime registration: the table is part of
// the wire contract.
var keyNames = map[uint8]string{
	2:   "sn",
	3:   "ret",
	6:   "ts",
	8:   "act",
	10:  "args",
	12:  "name",
	17:  "eps",
	22:  "devid",
	29:  "agt",
	35:  "node",
	41:  "val",
	46:  "key",
	49:  "valtag",
	61:  "uid",
	62:  "pwd",
	78:  "type",
	96:  "_schg",
	97:  "_sdel",
	106: "_chd",
	136: "bright",
}

var keyIDs map[string]uint8

func init() {
	keyIDs = make(map[string]uint8, len(keyNames))
	for id, name := range keyNames {
		keyIDs[name] = id
	}
}

// KeyName returns the canonical field name for an interned key id.
func KeyName(id uint8) (string, bool) {
	name, ok := keyNames[id]
	return name, ok
}

// KeyID returns the interned key id for a canonical field name.
func KeyID(name string) (uint8, bool) {
	id, ok := keyIDs[name]
	return id, ok
}

// internedString renders an interned id as text: the canonical name when
// the table knows it, "enum:<id>" otherwise.
func internedString(id uint8) string {
	if name, ok := keyNames[id]; ok {
		return name
	}
	return "enum:" + strconv.Itoa(int(id))
}

// internFromString maps a string back to an interned id where possible:
// a canonical table name, an explicit "enum:<name>" spelling of one, or
// "enum:<id>" with the id in byte range. The numeric form lets callers
// address table slots that have no assigned name (hubs use a few of
// those as action codes).
func internFromString(s string) (uint8, bool) {
	if id, ok := keyIDs[s]; ok {
		return id, true
	}
	rest, ok := strings.CutPrefix(s, "enum:")
	if !ok {
		return 0, false
	}
	if id, ok := keyIDs[rest]; ok {
		return id, true
	}
	if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= 255 {
		return uint8(n), true
	}
	return 0, false
}
