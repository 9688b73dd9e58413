// Package routing implements the routing connection pool (spec.md §4.6-§4.8):
// a time-to-live routing table, least-connected load balancer, and the
// multi-address pool that keeps the table fresh and dispatches by access
// mode.
package routing

import (
	"time"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// Table is the parsed view of a routing record: three ordered address sets
// plus a TTL clock. A refresh replaces the whole Table; between refreshes,
// RemoveRouter and Deactivate edit its sets in place.
type Table struct {
	Routers []string
	Readers []string
	Writers []string

	TTL         time.Duration
	lastUpdated time.Time

	// MissingWriter is set when this table has readers but no writers —
	// still usable for READ, never for WRITE.
	MissingWriter bool
}

// routingRecord is the shape of a parsed GET_ROUTING_TABLE / ROUTE record.
type routingRecord struct {
	TTL     int64
	Servers []roleServers
}

type roleServers struct {
	Role      string
	Addresses []string
}

// ParseTable builds a Table from a decoded routing record (the map form a
// ROUTE/CALL dbms.cluster.routing.getRoutingTable response yields).
// Unknown roles are ignored; missing ROUTE or missing READ addresses are
// protocol errors (spec.md §4.6).
func ParseTable(record map[string]any, now time.Time) (*Table, error) {
	ttlRaw, _ := record["ttl"].(int64)
	rawServers, _ := record["servers"].([]any)

	t := &Table{TTL: time.Duration(ttlRaw) * time.Second, lastUpdated: now}

	for _, raw := range rawServers {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		addrsRaw, _ := entry["addresses"].([]any)
		addrs := make([]string, 0, len(addrsRaw))
		for _, a := range addrsRaw {
			if s, ok := a.(string); ok {
				addrs = append(addrs, s)
			}
		}
		switch role {
		case "ROUTE":
			t.Routers = addrs
		case "READ":
			t.Readers = addrs
		case "WRITE":
			t.Writers = addrs
		default:
			// unknown role, ignored per spec.md §4.6
		}
	}

	if len(t.Routers) == 0 {
		return nil, boltErr.Wrap(boltErr.RoutingProtocolError, "routing record has no ROUTE addresses")
	}
	if len(t.Readers) == 0 {
		return nil, boltErr.Wrap(boltErr.RoutingProtocolError, "routing record has no READ addresses")
	}
	t.MissingWriter = len(t.Writers) == 0
	return t, nil
}

// IsFresh reports whether the table may still be used for mode without a
// refresh: the TTL clock hasn't elapsed, and the relevant address set (or,
// for WRITE, the missing-writer flag) is non-empty.
func (t *Table) IsFresh(mode bolt.AccessMode) bool {
	if t == nil {
		return false
	}
	if time.Since(t.lastUpdated) >= t.TTL {
		return false
	}
	if mode == bolt.AccessModeWrite {
		return !t.MissingWriter && len(t.Writers) > 0
	}
	return len(t.Readers) > 0
}

// RemoveRouter drops address from Routers, used when a router drops the
// connection mid-query during a refresh attempt.
func (t *Table) RemoveRouter(address string) {
	t.Routers = removeAddr(t.Routers, address)
}

// Deactivate drops address from every set (used when the pool gives up on
// an address after a failed connection attempt).
func (t *Table) Deactivate(address string) {
	t.Routers = removeAddr(t.Routers, address)
	t.Readers = removeAddr(t.Readers, address)
	t.Writers = removeAddr(t.Writers, address)
}

func removeAddr(set []string, address string) []string {
	out := set[:0]
	for _, a := range set {
		if a != address {
			out = append(out, a)
		}
	}
	return out
}
