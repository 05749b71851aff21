package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// Record is one captured frame.
type Record struct {
	// Seq numbers records within one capture, starting at 1.
	Seq uint64 `cbor:"seq"`

	// Time is when the frame crossed the tap.
	Time time.Time `cbor:"ts"`

	// Outbound is true for frames the session sent to the hub.
	Outbound bool `cbor:"out"`

	// Frame is the complete raw frame, header included.
	Frame []byte `cbor:"frame"`
}

// Writer appends frame records to a capture stream. It implements
// hub.FrameTap and is safe for the session's concurrent send and receive
// paths.
type Writer struct {
	mu   sync.Mutex
	enc  *cbor.Encoder
	dst  io.Writer
	seq  uint64
	err  error
	done bool
}

// NewWriter starts a capture writing to dst. If dst is an io.Closer,
// Close closes it.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{
		enc: cbor.NewEncoder(dst),
		dst: dst,
	}
}

// Frame records one raw frame. The slice is copied before the tap
// returns, as the session reuses its buffers.
func (w *Writer) Frame(outbound bool, frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || w.err != nil {
		return
	}
	w.seq++
	rec := Record{
		Seq:      w.seq,
		Time:     time.Now().UTC(),
		Outbound: outbound,
		Frame:    append([]byte(nil), frame...),
	}
	if err := w.enc.Encode(rec); err != nil {
		// Record the failure and stop capturing; the session must not
		// be disturbed by a full disk.
		w.err = err
	}
}

// Records reports how many frames have been captured.
func (w *Writer) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Err returns the first write failure, if any. Capturing stops at the
// first failure.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close finishes the capture and closes the destination when it is a
// Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	if c, ok := w.dst.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return w.err
}

// Reader walks the records of a capture stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads capture records from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(src)}
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: corrupt record: %w", err)
	}
	return rec, nil
}

// ReadAll drains src into a record slice.
func ReadAll(src io.Reader) ([]Record, error) {
	r := NewReader(src)
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Decode parses a record's raw frame into its normalized value trees.
func (rec Record) Decode() ([]protocol.Value, error) {
	consumed, values, err := protocol.DecodeFrame(rec.Frame)
	if err != nil {
		return nil, err
	}
	if consumed != len(rec.Frame) {
		return nil, fmt.Errorf("capture: record %d carries %d trailing bytes",
			rec.Seq, len(rec.Frame)-consumed)
	}
	for i := range values {
		values[i] = protocol.Normalize(values[i])
	}
	return values, nil
}
