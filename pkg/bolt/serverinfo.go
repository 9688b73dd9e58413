package bolt

import (
	"regexp"
	"strconv"
)

var agentPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/(\d+)\.(\d+)(?:\.(\d+))?`)

// ServerInfo describes the peer a Connection is talking to: its address,
// the negotiated protocol version, and vendor metadata parsed from the
// HELLO/INIT SUCCESS response.
type ServerInfo struct {
	Address         string
	ProtocolVersion uint32
	Agent           string

	agentProduct       string
	agentMajor         int
	agentMinor         int
	bytesSupported     bool
	runMetadataAllowed bool
}

// NewServerInfo builds a ServerInfo from the negotiated version and the
// agent string returned in the HELLO/INIT success metadata (if any).
func NewServerInfo(address string, protocolVersion uint32, agent string) *ServerInfo {
	si := &ServerInfo{Address: address, ProtocolVersion: protocolVersion, Agent: agent}
	si.agentProduct, si.agentMajor, si.agentMinor = parseAgent(agent)

	// spec.md §4.1 / §9: Bytes support is inferred once, uniformly, from
	// either protocol >= 3 (Bolt 3 clients may assume support) or an agent
	// reporting product "Neo4j" at version >= 3.2.
	si.bytesSupported = protocolVersion >= Version3 ||
		(si.agentProduct == "Neo4j" && (si.agentMajor > 3 || (si.agentMajor == 3 && si.agentMinor >= 2)))

	si.runMetadataAllowed = protocolVersion >= Version3
	return si
}

func parseAgent(agent string) (product string, major, minor int) {
	m := agentPattern.FindStringSubmatch(agent)
	if m == nil {
		return "", 0, 0
	}
	maj, _ := strconv.Atoi(m[2])
	min, _ := strconv.Atoi(m[3])
	return m[1], maj, min
}

// SupportsBytes reports whether the codec may emit Bytes values to this
// server.
func (si *ServerInfo) SupportsBytes() bool { return si.bytesSupported }

// SupportsRunMetadata reports whether RUN/BEGIN accept metadata, timeout,
// mode, and bookmarks arguments (protocol >= 3).
func (si *ServerInfo) SupportsRunMetadata() bool { return si.runMetadataAllowed }
