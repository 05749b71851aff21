package protocol

import "errors"

// Depth limit to prevent stack exhaustion via deeply nested composites.
// This complements the allocation limits in decoder.go.
const (
	// MaxValueDepth limits the nesting depth of decoded value trees.
	// Hub state trees are around four levels deep (root, device, channel,
	// field), so 64 leaves generous headroom while keeping crafted
	// deep-nesting input from recursing without bound.
	MaxValueDepth = 64
)

// ErrMaxDepthExceeded reports a value tree nested deeper than
// MaxValueDepth. It is a corruption error: the bytes are well formed
// varint-wise but no hub produces trees like this.
var ErrMaxDepthExceeded = errors.New("protocol: value nesting too deep")
