package bolt

// Request message tags. These were already present (as constants, with no
// real codec behind them) in the teacher's stub pkg/bolt/server.go — kept
// verbatim since the tag table is part of the wire protocol, not an
// implementation choice.
const (
	MsgHello    byte = 0x01
	MsgInit     byte = 0x01 // same tag, pre-3.0 name
	MsgGoodbye  byte = 0x02
	MsgReset    byte = 0x0F
	MsgRun      byte = 0x10
	MsgBegin    byte = 0x11
	MsgCommit   byte = 0x12
	MsgRollback byte = 0x13
	MsgDiscard  byte = 0x2F
	MsgPull     byte = 0x3F
	MsgRoute    byte = 0x66
)

// Response message tags.
const (
	MsgSuccess byte = 0x70
	MsgRecord  byte = 0x71
	MsgIgnored byte = 0x7E
	MsgFailure byte = 0x7F
)

// Protocol versions this client knows how to speak. Versions above these are
// never proposed during the handshake (spec.md §4.3).
const (
	Version1 = uint32(1)
	Version2 = uint32(2)
	Version3 = uint32(3)
)

// supportedVersions lists every version this client proposes, most
// preferred first, matching the 4-slot handshake proposal.
var supportedVersions = []uint32{Version3, Version2, Version1}
