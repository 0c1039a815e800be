package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder writes frames as newline-delimited JSON. It is safe for concurrent
// use so that a worker can interleave progress frames from a handler with the
// terminal frame from its main loop.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode validates and writes a single frame, flushing immediately so that
// the peer never waits on a buffered terminal message.
func (e *Encoder) Encode(frame *Frame) error {
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("refusing to encode invalid frame: %w", err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err = e.w.Write(data); err != nil {
		return err
	}
	if err = e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads newline-delimited JSON frames.
type Decoder struct {
	scanner *bufio.Scanner
}

// maxFrameSize bounds a single frame; payloads larger than this must be
// passed by filesystem reference rather than inline.
const maxFrameSize = 64 * 1024 * 1024

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Decoder{scanner: scanner}
}

// Decode reads the next frame. It returns io.EOF when the stream ends and a
// wrapped error for malformed input; both are fatal to the connection.
func (d *Decoder) Decode() (*Frame, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	frame := &Frame{}
	if err := json.Unmarshal(d.scanner.Bytes(), frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}
