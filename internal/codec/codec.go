// Package codec implements the wire framing for the chat server: every
// message is a 4-byte big-endian length prefix followed by exactly that many
// bytes of UTF-8 payload. A length of zero is valid and yields an empty
// payload.
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderLen is the size in bytes of the length prefix.
const HeaderLen = 4

// ErrShortWrite is returned by WriteFull (and so by Send) when the
// underlying writer accepts zero bytes without reporting an error.
var ErrShortWrite = errors.New("codec: short write")

// Encode returns the on-wire representation of payload: a 4-byte big-endian
// length followed by payload itself.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf
}

// WriteFull writes b to w, retrying on short writes until every byte has
// left or the writer errors.
func WriteFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// Send encodes payload and writes it in full to w.
func Send(w io.Writer, payload []byte) error {
	return WriteFull(w, Encode(payload))
}

// Accumulator reassembles frames from an arbitrary sequence of byte chunks
// handed to it by a nonblocking reader. It retains partial headers and
// partial payloads across calls to Feed.
type Accumulator struct {
	buf []byte
}

// Feed appends chunk to the accumulator and returns every complete message
// it can now detach, in order. Bytes belonging to a still-incomplete frame
// are retained for the next call.
func (a *Accumulator) Feed(chunk []byte) [][]byte {
	a.buf = append(a.buf, chunk...)

	var out [][]byte
	for {
		msg, ok := a.detach()
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out
}

// detach removes and returns one complete message from the front of the
// accumulator, if one is fully present.
func (a *Accumulator) detach() ([]byte, bool) {
	if len(a.buf) < HeaderLen {
		return nil, false
	}
	n := binary.BigEndian.Uint32(a.buf[:HeaderLen])
	total := HeaderLen + int(n)
	if len(a.buf) < total {
		return nil, false
	}
	msg := make([]byte, n)
	copy(msg, a.buf[HeaderLen:total])
	rest := make([]byte, len(a.buf)-total)
	copy(rest, a.buf[total:])
	a.buf = rest
	return msg, true
}

// Pending reports how many bytes are currently buffered awaiting completion
// of a frame. Useful for diagnostics and tests.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}
