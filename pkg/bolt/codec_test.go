package bolt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any, bytesSupported bool) any {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, bytesSupported)
	require.NoError(t, enc.Encode(v))
	dec := NewDecoder(&buf)
	got, err := dec.Decode()
	require.NoError(t, err)
	return got
}

func TestCodecRoundTrip_Scalars(t *testing.T) {
	cases := []any{
		nil, true, false,
		int64(0), int64(127), int64(-16), int64(-17),
		int64(128), int64(-129), int64(40000), int64(-40000),
		int64(3000000000), int64(-3000000000),
		3.14159, "", "hello", "a longer string that exceeds the tiny string range by quite a bit",
	}
	for _, c := range cases {
		got := roundTrip(t, c, true)
		assert.Equal(t, c, got)
	}
}

func TestCodecRoundTrip_Bytes(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03}
	got := roundTrip(t, b, true)
	assert.Equal(t, b, got)
}

func TestEncodeBytes_RejectedWithoutSupport(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, false)
	err := enc.Encode([]byte{0x01})
	require.Error(t, err)
}

func TestCodecRoundTrip_ListAndMap(t *testing.T) {
	list := []any{int64(1), "two", 3.0, nil}
	got := roundTrip(t, list, true)
	assert.Equal(t, list, got)

	m := map[string]any{"a": int64(1), "b": "two"}
	got = roundTrip(t, m, true)
	assert.Equal(t, m, got)
}

func TestCodecRoundTrip_Structure(t *testing.T) {
	s := &Structure{Tag: 0x01, Fields: []any{"agent", map[string]any{"scheme": "basic"}}}
	got := roundTrip(t, s, true)
	gotStruct, ok := got.(*Structure)
	require.True(t, ok)
	assert.Equal(t, s.Tag, gotStruct.Tag)
	assert.Equal(t, s.Fields, gotStruct.Fields)
}

func TestCodecMarkerMinimality(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, true)
	require.NoError(t, enc.Encode(int64(1)))
	assert.Equal(t, []byte{0x01}, buf.Bytes())

	buf.Reset()
	require.NoError(t, enc.Encode(int64(-1)))
	assert.Equal(t, []byte{0xFF}, buf.Bytes())

	buf.Reset()
	require.NoError(t, enc.Encode(int64(128)))
	assert.Equal(t, []byte{markerInt16, 0x00, 0x80}, buf.Bytes())
}

func TestHydrateNode(t *testing.T) {
	s := &Structure{Tag: TagNode, Fields: []any{
		int64(42),
		[]any{"Person"},
		map[string]any{"name": "alice"},
	}}
	v := Hydrate(s)
	node, ok := v.(*Node)
	require.True(t, ok)
	assert.Equal(t, int64(42), node.ID)
	assert.Equal(t, []string{"Person"}, node.Labels)
	assert.Equal(t, "alice", node.Properties["name"])
}

func TestHydrateUnknownTagPassesThrough(t *testing.T) {
	s := &Structure{Tag: 0x99, Fields: []any{int64(1)}}
	v := Hydrate(s)
	assert.Same(t, s, v)
}

func TestChunker_SplitsAndReassembles(t *testing.T) {
	msg := &Structure{Tag: MsgRun, Fields: []any{"RETURN 1", map[string]any{}}}
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg, true))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Tag, got.Tag)
	assert.Equal(t, msg.Fields, got.Fields)
}

func TestChunker_LargePayloadMultipleChunks(t *testing.T) {
	big := make([]byte, maxChunkSize*2+10)
	for i := range big {
		big[i] = byte(i % 251)
	}
	msg := &Structure{Tag: MsgRun, Fields: []any{string(big), map[string]any{}}}
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg, true))

	// Confirm more than one chunk was actually written.
	assert.Greater(t, buf.Len(), maxChunkSize+4)

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Fields[0], got.Fields[0])
}

func TestHandshake_NegotiatesVersion(t *testing.T) {
	client, server := newPipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var proposal [20]byte
		server.Read(proposal[:])
		resp := []byte{0x00, 0x00, 0x00, 0x03}
		server.Write(resp)
	}()

	version, err := Handshake(client)
	require.NoError(t, err)
	assert.Equal(t, Version3, version)
	<-done
}

func TestHandshake_RejectsHTTPPeer(t *testing.T) {
	client, server := newPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var proposal [20]byte
		server.Read(proposal[:])
		server.Write([]byte("HTTP"))
	}()

	_, err := Handshake(client)
	require.Error(t, err)
}

func TestHandshake_NoCommonVersion(t *testing.T) {
	client, server := newPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var proposal [20]byte
		server.Read(proposal[:])
		server.Write([]byte{0x00, 0x00, 0x00, 0x00})
	}()

	_, err := Handshake(client)
	require.Error(t, err)
}
