// Package hub maintains the long-lived TCP connection to a gateway hub.
//
// The hub package owns the connection lifecycle, the in-memory device
// tree, and the delivery of live state changes. It sits on top of the
// binary codec (pkg/protocol) and below whatever consumes device state:
// the monitor server, the CLI, or an embedding application.
//
// # Session Lifecycle
//
// A Session moves through five states:
//
//	Disconnected -> Connecting -> AwaitingLoginAck -> LoadingConfig -> Streaming
//
// Any state can fall back to Disconnected on failure. Run drives the
// whole cycle: it dials the hub, authenticates, downloads the full device
// tree, and then consumes push notifications until the connection dies,
// at which point it waits out the reconnect delay and starts over. Stop
// or context cancellation ends the loop from any blocking point.
//
// The run loop is the only goroutine that touches the socket or mutates
// the device tree. Commands from other goroutines share the socket
// through a write lock, and tree reads go through deep-copied snapshots.
//
// # Device Tree and Deltas
//
// The load phase installs a DeviceTree: device records with their
// channels and last-known field values, display names resolved through
// the hub's placeholder scheme ({$EPN} expands to the parent device's
// name). While streaming, each state-change notification is merged into
// the tree and forwarded to the session's DeltaHandler as a ChannelUpdate
// carrying the channel's full merged state; device removals arrive as
// DeviceDeleted and mean the consumer should reload.
//
// # Idle Handling
//
// Hubs go quiet for long stretches. A streaming read that exceeds
// IdleTimeout does not kill the connection; the session sends a cheap
// get-config probe and keeps reading. Only a second consecutive idle
// period, or a probe that cannot be written, forces a reconnect.
//
// # Example Usage
//
//	cfg := hub.DefaultSessionConfig().
//	    WithAddress("192.168.1.50:4343").
//	    WithCredentials("admin", "secret")
//
//	sess, err := hub.NewSession(cfg, func(d hub.Delta) {
//	    switch d := d.(type) {
//	    case hub.ChannelUpdate:
//	        log.Printf("%s/%s = %v", d.DeviceID, d.Channel, d.Fields["val"])
//	    case hub.DeviceDeleted:
//	        log.Printf("%s removed, reload", d.DeviceID)
//	    }
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go sess.Run(context.Background())
//	<-sess.Ready()
//
//	for id, dev := range sess.Devices() {
//	    log.Printf("%s: %s (%d channels)", id, dev.Name, len(dev.Channels))
//	}
//	sess.Stop()
//
// # File Structure
//
//   - session.go: connection state machine, stream reassembly, commands
//   - devicetree.go: device and channel records, tree install and merge
//   - delta.go: delta parsing and the ChannelUpdate/DeviceDeleted types
//   - naming.go: display-name placeholder resolution
//   - config.go: SessionConfig with defaults and chainable setters
//   - metrics.go: per-session counters and connect latency percentiles
//   - errors.go: sentinel errors, HubError classification
package hub
