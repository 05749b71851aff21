package hub

import (
	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// Channel is the last-known state of one device sub-channel: name, val,
// type, bright and whatever else the hub reports, keyed by canonical field
// name with native Go values.
type Channel map[string]any

// Int returns the named field as an int64, or def when it is absent or
// not an integer.
func (c Channel) Int(name string, def int64) int64 {
	if v, ok := c[name].(int64); ok {
		return v
	}
	return def
}

// Text returns the named field as a string, or def when it is absent or
// not a string.
func (c Channel) Text(name, def string) string {
	if v, ok := c[name].(string); ok {
		return v
	}
	return def
}

// Clone returns a copy of the channel state.
func (c Channel) Clone() Channel {
	out := make(Channel, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Device is one hub endpoint and the channels hanging off it.
type Device struct {
	ID       string             `json:"id"`
	HubID    string             `json:"hub_id"`
	Name     string             `json:"name"`
	Type     int64              `json:"type"`
	Channels map[string]Channel `json:"channels"`
}

// Clone returns a deep copy of the device record.
func (d *Device) Clone() *Device {
	out := &Device{
		ID:       d.ID,
		HubID:    d.HubID,
		Name:     d.Name,
		Type:     d.Type,
		Channels: make(map[string]Channel, len(d.Channels)),
	}
	for k, ch := range d.Channels {
		out.Channels[k] = ch.Clone()
	}
	return out
}

// DeviceTree maps device identifier to its record. The owning session's
// run loop is the only writer; everything outside the loop reads deep
// copies taken by Session.Devices.
type DeviceTree map[string]*Device

// Clone returns a deep copy of the tree.
func (t DeviceTree) Clone() DeviceTree {
	out := make(DeviceTree, len(t))
	for id, dev := range t {
		out[id] = dev.Clone()
	}
	return out
}

// Channel returns the state of one channel of one device.
func (t DeviceTree) Channel(devID, channel string) (Channel, bool) {
	dev, ok := t[devID]
	if !ok {
		return nil, false
	}
	ch, ok := dev.Channels[channel]
	return ch, ok
}

// ChannelCount returns the total number of channels across all devices.
func (t DeviceTree) ChannelCount() int {
	n := 0
	for _, dev := range t {
		n += len(dev.Channels)
	}
	return n
}

// ApplyUpdate merges a delta's fields into the addressed channel, creating
// the device and channel records when the tree has not seen them before.
// It returns the update with DevType filled from the device record and
// Fields replaced by a copy of the channel's full merged state.
func (t DeviceTree) ApplyUpdate(upd ChannelUpdate) ChannelUpdate {
	dev := t[upd.DeviceID]
	if dev == nil {
		dev = &Device{
			ID:       upd.DeviceID,
			HubID:    upd.HubID,
			Channels: make(map[string]Channel),
		}
		t[upd.DeviceID] = dev
	}
	ch := dev.Channels[upd.Channel]
	if ch == nil {
		ch = make(Channel)
		dev.Channels[upd.Channel] = ch
	}
	for k, v := range upd.Fields {
		ch[k] = v
	}
	upd.DevType = dev.Type
	upd.Fields = ch.Clone()
	return upd
}

// Delete removes a device record, reporting whether it existed.
func (t DeviceTree) Delete(devID string) bool {
	if _, ok := t[devID]; !ok {
		return false
	}
	delete(t, devID)
	return true
}

// treeFromConfig builds a DeviceTree from the ret object of a get-config
// response. The value is expected to be normalized already, so interned
// keys arrive as text. Device and channel display names have their
// placeholders resolved here, once, at install time. Null fields in the
// response are the hub's way of saying "not applicable" and are dropped.
func treeFromConfig(hubID string, ret protocol.Value) DeviceTree {
	tree := make(DeviceTree)
	if ret.Kind != protocol.KindMap {
		return tree
	}
	for _, e := range ret.Map {
		devID := e.Key.TextOr("")
		if devID == "" || e.Val.Kind != protocol.KindMap {
			continue
		}
		dv := e.Val
		name, _ := dv.Lookup("name")
		dev := &Device{
			ID:       devID,
			HubID:    hubID,
			Name:     ResolveName("", name.TextOr("")),
			Channels: make(map[string]Channel),
		}
		if typ, ok := dv.Lookup("type"); ok {
			dev.Type = typ.IntOr(0)
		}
		if chd, ok := dv.Lookup("_chd"); ok && chd.Kind == protocol.KindMap {
			for _, ce := range chd.Map {
				key := ce.Key.TextOr("")
				if key == "" || ce.Val.Kind != protocol.KindMap {
					continue
				}
				dev.Channels[key] = channelFromValue(dev.Name, ce.Val)
			}
		}
		tree[devID] = dev
	}
	return tree
}

// channelFromValue converts one channel record to its native field map,
// resolving the name field against the parent device's name.
func channelFromValue(parentName string, v protocol.Value) Channel {
	ch := nativeFields(v)
	if raw, ok := ch["name"].(string); ok {
		ch["name"] = ResolveName(parentName, raw)
	}
	return ch
}

// nativeFields converts a composite's entries to native Go values, keyed
// by canonical field name. Null entries are dropped.
func nativeFields(v protocol.Value) Channel {
	fields := make(Channel, len(v.Map))
	for _, e := range v.Map {
		key := e.Key.TextOr("")
		if key == "" || e.Val.Kind == protocol.KindNull {
			continue
		}
		fields[key] = e.Val.Native()
	}
	return fields
}
