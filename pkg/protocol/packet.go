package protocol

import "sync/atomic"

// Action names carried in the "act" field of outbound packets. The
// get-config action is an unnamed key-table slot and goes out as the
// interned id instead of text.
const (
	actLogin      = "Login"
	actSetIO      = "rfSetA"
	actRunScene   = "RunA"
	actSendIRKeys = "SendKeys"
	actSetEEPROM  = "SetEE"
	actSetTimer   = "SetTimer"

	actGetConfigKey uint8 = 91
)

// Client identity fields sent with every login.
const (
	clientClass   = "gw"
	clientVersion = "1.1.0"
)

// PacketFactory builds the outbound command frames of the hub protocol.
// Builders construct value trees and hand them to EncodeFrame; none of
// them performs I/O. The only state is the packet sequence number stamped
// into each frame's metadata object, safe for concurrent use.
//
// Every packet is a two-element top-level list: the session metadata
// object, then the action payload object.
type PacketFactory struct {
	seq atomic.Int64
}

// NewPacketFactory creates a factory with the sequence counter at zero.
func NewPacketFactory() *PacketFactory {
	return &PacketFactory{}
}

// meta builds the session-metadata object that leads every packet.
func (f *PacketFactory) meta() Value {
	return MapOf(
		Field("sn", Int(f.seq.Add(1))),
	)
}

// build assembles the standard [metadata, body] frame.
func (f *PacketFactory) build(body Value) ([]byte, error) {
	return EncodeFrame([]Value{f.meta(), body})
}

// Login builds the authentication packet: fixed client identity fields
// plus the credentials.
func (f *PacketFactory) Login(user, pass string) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actLogin)),
		Field("args", MapOf(
			Field("uid", Text(user)),
			Field("pwd", Text(pass)),
			Field("cls", Text(clientClass)),
			Field("cver", Text(clientVersion)),
		)),
	))
}

// GetConfig builds the full device-tree request. The args object is the
// field filter: every name listed with a null value is returned for each
// device, with sub-channel fields nested under _chd. The same packet
// doubles as the idle heartbeat probe.
func (f *PacketFactory) GetConfig(node string) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Key(actGetConfigKey)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("eps", MapOf(
				Field("devid", Null()),
				Field("name", Null()),
				Field("type", Null()),
				Field("_chd", MapOf(
					Field("name", Null()),
					Field("val", Null()),
					Field("type", Null()),
					Field("bright", Null()),
				)),
			)),
		)),
	))
}

// SetSingleIO builds a write to one channel of one device.
func (f *PacketFactory) SetSingleIO(node, devid, key string, cmdType int64, val any) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actSetIO)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("val", FromNative(val)),
			Field("valtag", Text("m")),
			Field("devid", Text(devid)),
			Field("key", Text(key)),
			Field("type", Int(cmdType)),
		)),
	))
}

// IOValue is one channel write in a multi-IO command. Callers address
// channels by Idx; the wire field is named key, and the rename happens
// inside SetMultiIO.
type IOValue struct {
	Idx  string
	Type int64
	Val  any
}

// SetMultiIO builds a write to several channels of one device in a
// single packet.
func (f *PacketFactory) SetMultiIO(node, devid string, ios []IOValue) ([]byte, error) {
	items := make([]Value, len(ios))
	for i, io := range ios {
		items[i] = MapOf(
			Field("key", Text(io.Idx)),
			Field("type", Int(io.Type)),
			Field("val", FromNative(io.Val)),
		)
	}
	return f.build(MapOf(
		Field("act", Text(actSetIO)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("val", ListOf(items...)),
			Field("valtag", Text("m")),
			Field("devid", Text(devid)),
		)),
	))
}

// RunScene builds a scene trigger packet.
func (f *PacketFactory) RunScene(node, sceneID string) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actRunScene)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("id", Text(sceneID)),
		)),
	))
}

// IRCommand describes an infrared key-press command.
type IRCommand struct {
	DevID    string
	Category string
	Brand    string
	Keys     string
}

// SendIRKeys builds an infrared remote command packet.
func (f *PacketFactory) SendIRKeys(node string, cmd IRCommand) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actSendIRKeys)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("devid", Text(cmd.DevID)),
			Field("category", Text(cmd.Category)),
			Field("brand", Text(cmd.Brand)),
			Field("keys", Text(cmd.Keys)),
		)),
	))
}

// SetEEPROM builds a persistent device-register write.
func (f *PacketFactory) SetEEPROM(node, devid, key string, val any) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actSetEEPROM)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("val", FromNative(val)),
			Field("valtag", Text("m")),
			Field("devid", Text(devid)),
			Field("key", Text(key)),
		)),
	))
}

// SetTimer builds a scheduled-write packet: apply val to the channel at
// the given unix time.
func (f *PacketFactory) SetTimer(node, devid, key string, at int64, val any) ([]byte, error) {
	return f.build(MapOf(
		Field("act", Text(actSetTimer)),
		Field("node", Text(node)),
		Field("args", MapOf(
			Field("devid", Text(devid)),
			Field("key", Text(key)),
			Field("at", Timestamp(0, at)),
			Field("val", FromNative(val)),
		)),
	))
}
