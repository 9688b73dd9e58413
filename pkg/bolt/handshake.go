package bolt

import (
	"encoding/binary"
	"io"

	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// handshakeMagic is the 4-byte preamble sent before version proposals.
var handshakeMagic = [4]byte{0x60, 0x60, 0xB0, 0x17}

// proposalSlots is the fixed number of version proposals sent; unused
// slots are zero.
const proposalSlots = 4

// Handshake negotiates a Bolt protocol version over a freshly opened (and,
// if applicable, already TLS-wrapped) connection. It returns the version
// the server selected, a HandshakeError if no common version exists, or a
// ServiceUnavailable if the peer clearly isn't speaking Bolt at all (e.g. an
// HTTP server) — that mis-dial is connectivity, not protocol, failure.
func Handshake(rw io.ReadWriter) (uint32, error) {
	var out [4 + proposalSlots*4]byte
	copy(out[0:4], handshakeMagic[:])
	for i, v := range supportedVersions {
		if i >= proposalSlots {
			break
		}
		binary.BigEndian.PutUint32(out[4+i*4:8+i*4], v)
	}

	if _, err := rw.Write(out[:]); err != nil {
		return 0, boltErr.Wrap(boltErr.HandshakeError, "writing handshake proposal: %v", err)
	}

	var resp [4]byte
	if _, err := io.ReadFull(rw, resp[:]); err != nil {
		return 0, boltErr.Wrap(boltErr.HandshakeError, "reading handshake response: %v", err)
	}

	if looksLikeHTTP(resp[:]) {
		return 0, boltErr.Wrap(boltErr.ServiceUnavailable, "server replied with HTTP, not Bolt (got %q)", resp[:])
	}

	version := binary.BigEndian.Uint32(resp[:])
	if version == 0 {
		return 0, boltErr.Wrap(boltErr.HandshakeError, "server has no Bolt version in common with client")
	}
	return version, nil
}

// looksLikeHTTP detects a mis-dial to an HTTP port: the first byte of an
// HTTP response status line is always an ASCII letter (e.g. 'H' of
// "HTTP/1.1").
func looksLikeHTTP(b []byte) bool {
	return len(b) > 0 && b[0] >= 'A' && b[0] <= 'Z'
}
