// Package capture records the raw frames crossing a hub session's socket
// for later inspection and replay.
//
// A Writer implements hub.FrameTap: register it on the session config and
// every frame, outbound and inbound, is appended to the capture as a
// CBOR-encoded record with its direction, sequence number, and capture
// time. A Reader walks the records back out, and Decode renders a
// captured frame as its value trees.
//
//	f, _ := store.Create("kitchen-hub")
//	w := capture.NewWriter(f)
//	cfg.WithTap(w)
//	...
//	w.Close()
//
// Capture files live in a FileStore directory by default; an S3-backed
// archive store is provided as a build-tagged example.
package capture
