package hub

import (
	"strings"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// Delta is one state-change notification pushed by the hub while the
// session is streaming.
type Delta interface {
	delta()
}

// ChannelUpdate reports new field values for one channel of one device.
// Fields is the channel's full state after the change was merged into the
// device tree, not just the fields the hub sent.
type ChannelUpdate struct {
	HubID    string
	DeviceID string
	Channel  string
	DevType  int64
	Fields   map[string]any
}

func (ChannelUpdate) delta() {}

// DeviceDeleted reports that a device left the hub. The tree entry is
// already gone when the handler sees this; a full reload is the only way
// to resynchronize whatever replaced it.
type DeviceDeleted struct {
	HubID    string
	DeviceID string
}

func (DeviceDeleted) delta() {}

// DeltaHandler receives deltas from the session's run loop. Calls arrive
// one at a time on that goroutine, so a slow handler stalls the stream.
type DeltaHandler func(Delta)

// parseDeltas extracts the deltas carried by one normalized frame value.
// State changes live under _schg as a path-keyed map of field objects,
// deletions under _sdel. A value carrying neither returns nil.
func parseDeltas(body protocol.Value) []Delta {
	if body.Kind != protocol.KindMap {
		return nil
	}
	var out []Delta
	if chg, ok := body.Lookup("_schg"); ok && chg.Kind == protocol.KindMap {
		for _, e := range chg.Map {
			hubID, devID, channel, ok := splitChannelPath(e.Key.TextOr(""))
			if !ok || e.Val.Kind != protocol.KindMap {
				continue
			}
			out = append(out, ChannelUpdate{
				HubID:    hubID,
				DeviceID: devID,
				Channel:  channel,
				Fields:   nativeFields(e.Val),
			})
		}
	}
	if del, ok := body.Lookup("_sdel"); ok {
		for _, path := range deletionPaths(del) {
			hubID, devID, ok := splitDevicePath(path)
			if !ok {
				continue
			}
			out = append(out, DeviceDeleted{HubID: hubID, DeviceID: devID})
		}
	}
	return out
}

// splitChannelPath splits a hub/device/channel delta path.
func splitChannelPath(path string) (hubID, devID, channel string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// splitDevicePath splits a hub/device deletion path. A trailing channel
// component is accepted and ignored: removing a channel still invalidates
// the cached device record.
func splitDevicePath(path string) (hubID, devID string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// deletionPaths collects the paths named by an _sdel value, which hubs
// write as a single string, a sequence of strings, or a path-keyed map.
func deletionPaths(v protocol.Value) []string {
	switch v.Kind {
	case protocol.KindText:
		return []string{v.Text}
	case protocol.KindList:
		out := make([]string, 0, len(v.List))
		for _, item := range v.List {
			if item.Kind == protocol.KindText {
				out = append(out, item.Text)
			}
		}
		return out
	case protocol.KindMap:
		out := make([]string, 0, len(v.Map))
		for _, e := range v.Map {
			if p := e.Key.TextOr(""); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
