package bolt

import (
	"bytes"
	"encoding/binary"
	"io"
)

// maxChunkSize bounds a single chunk's payload. The wire format allows up to
// 65535 (16-bit length prefix); 16383 matches the size most Bolt servers use
// and keeps individual writes small enough to pipeline cheaply.
const maxChunkSize = 16383

// chunkHeaderSize is the 16-bit big-endian length prefix on every chunk.
const chunkHeaderSize = 2

// WriteMessage serializes msg with enc onto a scratch buffer, then frames it
// as one or more length-prefixed chunks terminated by an empty chunk, and
// writes the whole thing to w in a single call so multiple pipelined
// messages can share one TCP write from the caller.
func WriteMessage(w io.Writer, msg *Structure, bytesSupported bool) error {
	var body bytes.Buffer
	enc := NewEncoder(&body, bytesSupported)
	if err := enc.Encode(msg); err != nil {
		return err
	}
	return writeChunked(w, body.Bytes())
}

func writeChunked(w io.Writer, payload []byte) error {
	var out bytes.Buffer
	for len(payload) > 0 {
		n := len(payload)
		if n > maxChunkSize {
			n = maxChunkSize
		}
		var header [chunkHeaderSize]byte
		binary.BigEndian.PutUint16(header[:], uint16(n))
		out.Write(header[:])
		out.Write(payload[:n])
		payload = payload[n:]
	}
	// Empty chunk terminator.
	out.Write([]byte{0x00, 0x00})
	_, err := w.Write(out.Bytes())
	return err
}

// ReadMessage reassembles chunks from r until the empty terminator, then
// decodes the resulting bytes as a single Structure (a protocol message).
// The message structure itself is never hydrated, so a message tag that
// shares its byte with a value tag (ROUTE and DateTimeZoneID are both 0x66)
// still comes back as a *Structure; its fields are decoded as usual.
// Reads tolerate arbitrary TCP segment boundaries: io.ReadFull blocks until
// either the requested bytes arrive or the connection errors/closes.
func ReadMessage(r io.Reader) (*Structure, error) {
	body, err := readChunkedMessage(r)
	if err != nil {
		return nil, err
	}
	dec := NewDecoder(bytes.NewReader(body))
	marker, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	if marker < markerTinyStructMin || marker > markerTinyStructMax {
		return nil, errNotAMessage
	}
	tag, err := dec.readByte()
	if err != nil {
		return nil, err
	}
	fields := make([]any, int(marker&0x0F))
	for i := range fields {
		if fields[i], err = dec.Decode(); err != nil {
			return nil, err
		}
	}
	return &Structure{Tag: tag, Fields: fields}, nil
}

func readChunkedMessage(r io.Reader) ([]byte, error) {
	var body bytes.Buffer
	var header [chunkHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, err
		}
		size := binary.BigEndian.Uint16(header[:])
		if size == 0 {
			return body.Bytes(), nil
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		body.Write(chunk)
	}
}
