package routing

import (
	"context"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// routingProcedure is the Bolt 1/2 fallback for servers too old to speak
// the dedicated ROUTE message.
const routingProcedure = "CALL dbms.cluster.routing.getRoutingTable($context)"

// ConnectFunc dials and authenticates a connection to address, used only
// for routing queries (never pooled — routing connections are short-lived).
type ConnectFunc func(ctx context.Context, address string) (*bolt.Connection, error)

// NewQuerier builds a RouteQuerier that dials router with connect, issues
// the protocol-appropriate routing query, and returns the single routing
// record it yields.
func NewQuerier(connect ConnectFunc) RouteQuerier {
	return func(ctx context.Context, router string, routingContext map[string]any) (map[string]any, error) {
		conn, err := connect(ctx, router)
		if err != nil {
			return nil, nil // unreachable router: spec.md §4.7 treats this as "no record", not an error
		}
		defer conn.Close()

		if routingContext == nil {
			routingContext = map[string]any{}
		}

		if conn.ProtocolVersion() >= bolt.Version3 {
			return routeViaMessage(conn, routingContext)
		}
		return routeViaProcedure(conn, routingContext)
	}
}

func routeViaMessage(conn *bolt.Connection, routingContext map[string]any) (map[string]any, error) {
	var record map[string]any
	var failErr error
	handle := &bolt.ResponseHandle{
		OnSuccess: func(meta map[string]any) {
			if rt, ok := meta["rt"].(map[string]any); ok {
				record = rt
			}
		},
		// A FAILURE here is a server that answered and rejected the ROUTE
		// request, not an unreachable/dropped router; it must surface as an
		// error rather than be treated like a missing record (spec.md §4.7).
		OnFailure: func(meta map[string]any) {
			failErr = boltErr.NewFailureError(meta)
		},
	}
	conn.Route(routingContext, nil, "", handle)
	if err := conn.Sync(); err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}
	return record, nil
}

func routeViaProcedure(conn *bolt.Connection, routingContext map[string]any) (map[string]any, error) {
	var fields []any
	var failErr error
	recordReceived := false

	runHandle := &bolt.ResponseHandle{
		OnFailure: func(meta map[string]any) {
			failErr = boltErr.NewFailureError(meta)
		},
	}
	conn.Run(routingProcedure, map[string]any{"context": routingContext}, bolt.RunOptions{}, runHandle)

	pullHandle := &bolt.ResponseHandle{
		OnRecords: func(values []any) {
			fields = values
			recordReceived = true
		},
		OnFailure: func(meta map[string]any) {
			failErr = boltErr.NewFailureError(meta)
		},
	}
	conn.PullAll(pullHandle)

	if err := conn.Sync(); err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}
	if !recordReceived || len(fields) < 2 {
		return nil, nil
	}

	ttl, _ := fields[0].(int64)
	servers, _ := fields[1].([]any)
	return map[string]any{"ttl": ttl, "servers": servers}, nil
}
