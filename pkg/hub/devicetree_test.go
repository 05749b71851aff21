package hub

import (
	"reflect"
	"testing"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// configRet builds the ret object of a get-config response the way hubs
// shape it: device id to record, channels nested under _chd.
func configRet() protocol.Value {
	return protocol.MapOf(
		protocol.Field("dev1", protocol.MapOf(
			protocol.Field("devid", protocol.Text("dev1")),
			protocol.Field("name", protocol.Text("Kitchen")),
			protocol.Field("type", protocol.Int(129)),
			protocol.Field("_chd", protocol.MapOf(
				protocol.Field("L1", protocol.MapOf(
					protocol.Field("name", protocol.Text("{$EPN} Switch")),
					protocol.Field("val", protocol.Int(1)),
					protocol.Field("type", protocol.Int(129)),
					protocol.Field("bright", protocol.Null()),
				)),
				protocol.Field("L2", protocol.MapOf(
					protocol.Field("name", protocol.Text("{$EPN} Dimmer")),
					protocol.Field("val", protocol.Int(200)),
					protocol.Field("type", protocol.Int(130)),
					protocol.Field("bright", protocol.Int(200)),
				)),
			)),
		)),
		protocol.Field("dev2", protocol.MapOf(
			protocol.Field("devid", protocol.Text("dev2")),
			protocol.Field("name", protocol.Text("Porch Sensor")),
			protocol.Field("type", protocol.Int(40)),
		)),
	)
}

func TestTreeFromConfig(t *testing.T) {
	tree := treeFromConfig("H1", configRet())

	if len(tree) != 2 {
		t.Fatalf("tree has %d devices, want 2", len(tree))
	}

	dev1 := tree["dev1"]
	if dev1 == nil {
		t.Fatal("dev1 missing from tree")
	}
	if dev1.HubID != "H1" {
		t.Errorf("dev1 hub = %q, want H1", dev1.HubID)
	}
	if dev1.Name != "Kitchen" {
		t.Errorf("dev1 name = %q, want Kitchen", dev1.Name)
	}
	if dev1.Type != 129 {
		t.Errorf("dev1 type = %d, want 129", dev1.Type)
	}
	if len(dev1.Channels) != 2 {
		t.Fatalf("dev1 has %d channels, want 2", len(dev1.Channels))
	}

	l1 := dev1.Channels["L1"]
	if got := l1.Text("name", ""); got != "Kitchen Switch" {
		t.Errorf("L1 name = %q, want resolved Kitchen Switch", got)
	}
	if got := l1.Int("val", -1); got != 1 {
		t.Errorf("L1 val = %d, want 1", got)
	}
	if got := l1.Int("type", -1); got != 129 {
		t.Errorf("L1 type = %d, want 129", got)
	}
	if _, ok := l1["bright"]; ok {
		t.Error("L1 bright is null in the response and should be dropped")
	}

	if got := dev1.Channels["L2"].Int("bright", -1); got != 200 {
		t.Errorf("L2 bright = %d, want 200", got)
	}

	dev2 := tree["dev2"]
	if dev2 == nil {
		t.Fatal("dev2 missing from tree")
	}
	if len(dev2.Channels) != 0 {
		t.Errorf("dev2 has %d channels, want 0", len(dev2.Channels))
	}
}

func TestTreeFromConfigMalformed(t *testing.T) {
	tests := []struct {
		name string
		ret  protocol.Value
		want int
	}{
		{"not_a_map", protocol.Text("nope"), 0},
		{"empty", protocol.MapOf(), 0},
		{"device_not_map", protocol.MapOf(protocol.Field("dev1", protocol.Int(3))), 0},
		{"one_good_one_bad", protocol.MapOf(
			protocol.Field("dev1", protocol.Int(3)),
			protocol.Field("dev2", protocol.MapOf(protocol.Field("name", protocol.Text("OK")))),
		), 1},
		{"channel_not_map", protocol.MapOf(
			protocol.Field("dev1", protocol.MapOf(
				protocol.Field("name", protocol.Text("X")),
				protocol.Field("_chd", protocol.MapOf(
					protocol.Field("L1", protocol.Text("bad")),
				)),
			)),
		), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := treeFromConfig("H1", tc.ret)
			if len(tree) != tc.want {
				t.Errorf("tree has %d devices, want %d", len(tree), tc.want)
			}
		})
	}
}

func TestTreeApplyUpdate(t *testing.T) {
	tree := treeFromConfig("H1", configRet())

	merged := tree.ApplyUpdate(ChannelUpdate{
		HubID:    "H1",
		DeviceID: "dev1",
		Channel:  "L1",
		Fields:   Channel{"val": int64(0)},
	})

	if merged.DevType != 129 {
		t.Errorf("merged DevType = %d, want 129 from the device record", merged.DevType)
	}
	if got := merged.Fields["val"]; got != int64(0) {
		t.Errorf("merged val = %v, want 0", got)
	}
	if got := merged.Fields["type"]; got != int64(129) {
		t.Errorf("merged type = %v, want 129 carried from loaded state", got)
	}
	if got, _ := tree.Channel("dev1", "L1"); got.Int("val", -1) != 0 {
		t.Errorf("tree val = %d, want 0 after merge", got.Int("val", -1))
	}

	// The returned fields are a copy, not a window into the tree.
	merged.Fields["val"] = int64(99)
	if got, _ := tree.Channel("dev1", "L1"); got.Int("val", -1) != 0 {
		t.Error("mutating the returned fields changed the tree")
	}
}

func TestTreeApplyUpdateUnknownDevice(t *testing.T) {
	tree := make(DeviceTree)

	merged := tree.ApplyUpdate(ChannelUpdate{
		HubID:    "H1",
		DeviceID: "ghost",
		Channel:  "L1",
		Fields:   Channel{"val": int64(5)},
	})

	if merged.DevType != 0 {
		t.Errorf("DevType = %d, want 0 for a device the tree has not seen", merged.DevType)
	}
	dev := tree["ghost"]
	if dev == nil {
		t.Fatal("update did not create the device record")
	}
	if dev.HubID != "H1" {
		t.Errorf("created device hub = %q, want H1", dev.HubID)
	}
	if got := dev.Channels["L1"].Int("val", -1); got != 5 {
		t.Errorf("created channel val = %d, want 5", got)
	}
}

func TestTreeDelete(t *testing.T) {
	tree := treeFromConfig("H1", configRet())

	if !tree.Delete("dev2") {
		t.Error("Delete(dev2) = false, want true")
	}
	if tree.Delete("dev2") {
		t.Error("second Delete(dev2) = true, want false")
	}
	if _, ok := tree["dev2"]; ok {
		t.Error("dev2 still present after delete")
	}
}

func TestTreeClone(t *testing.T) {
	tree := treeFromConfig("H1", configRet())
	clone := tree.Clone()

	if !reflect.DeepEqual(tree, clone) {
		t.Fatal("clone differs from original")
	}

	clone["dev1"].Channels["L1"]["val"] = int64(7)
	clone["dev1"].Name = "Renamed"
	clone.Delete("dev2")

	if got, _ := tree.Channel("dev1", "L1"); got.Int("val", -1) != 1 {
		t.Error("mutating clone channel changed the original")
	}
	if tree["dev1"].Name != "Kitchen" {
		t.Error("mutating clone device changed the original")
	}
	if _, ok := tree["dev2"]; !ok {
		t.Error("deleting from clone changed the original")
	}
}

func TestTreeAccessors(t *testing.T) {
	tree := treeFromConfig("H1", configRet())

	if got := tree.ChannelCount(); got != 2 {
		t.Errorf("ChannelCount = %d, want 2", got)
	}
	if _, ok := tree.Channel("dev1", "L9"); ok {
		t.Error("Channel(dev1, L9) found a channel that does not exist")
	}
	if _, ok := tree.Channel("ghost", "L1"); ok {
		t.Error("Channel(ghost, L1) found a device that does not exist")
	}

	ch, ok := tree.Channel("dev1", "L2")
	if !ok {
		t.Fatal("Channel(dev1, L2) not found")
	}
	if got := ch.Text("name", ""); got != "Kitchen Dimmer" {
		t.Errorf("L2 name = %q, want Kitchen Dimmer", got)
	}
	if got := ch.Text("val", "fallback"); got != "fallback" {
		t.Errorf("Text on numeric field = %q, want fallback", got)
	}
	if got := ch.Int("name", -1); got != -1 {
		t.Errorf("Int on text field = %d, want -1", got)
	}
}
