// Package subprocess implements handler.Handler by delegating to an
// external driver plugin process over a length-prefixed msgpack wire
// protocol, adapted from the teacher's IPC frame codec (ipc/frame.go):
// same 4-byte big-endian length prefix and msgpack payload encoding,
// generalized from the scraping event/artifact frame union to a single
// request/response pair carrying lifecycle operations.
package subprocess

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single frame, including its length prefix,
// matching the teacher's 16 MiB budget for subprocess IPC.
const MaxFrameSize = 16 * 1024 * 1024

// MaxPayloadSize is the maximum payload size (MaxFrameSize - prefix).
const MaxPayloadSize = MaxFrameSize - lengthPrefixSize

const lengthPrefixSize = 4

// Op identifies which Handler method a request frame invokes.
type Op string

const (
	OpExecuteLifecycle      Op = "execute_lifecycle"
	OpGetLifecycleExecution Op = "get_lifecycle_execution"
	OpFindReference         Op = "find_reference"
	OpPostLifecycleResponse Op = "post_lifecycle_response"
)

// Request is one call into the driver plugin process.
type Request struct {
	Op      Op             `msgpack:"op"`
	Payload map[string]any `msgpack:"payload"`
}

// Response is the plugin's reply to a Request.
type Response struct {
	OK      bool           `msgpack:"ok"`
	Payload map[string]any `msgpack:"payload,omitempty"`
	Error   string         `msgpack:"error,omitempty"`
}

// FrameError classifies a frame decoding failure.
type FrameError struct {
	Msg string
	Err error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// FrameDecoder reads length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader *bufio.Reader
}

// NewFrameDecoder wraps r for frame reading, buffering if it isn't
// already buffered (reduces syscall overhead over OS pipes).
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameDecoder{reader: br}
}

// ReadResponse reads one Response frame. Returns io.EOF when the stream
// ends cleanly between frames.
func (d *FrameDecoder) ReadResponse() (*Response, error) {
	payload, err := d.readFrame()
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, &FrameError{Msg: "failed to decode response frame", Err: err}
	}
	return &resp, nil
}

func (d *FrameDecoder) readFrame() ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{Msg: fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize)}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// EncodeFrame msgpack-encodes v and prefixes it with its 4-byte
// big-endian length.
func EncodeFrame(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:lengthPrefixSize], uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	return buf, nil
}
