package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_ReturnsFixedAddresses(t *testing.T) {
	r := Static{Addresses: []string{"a:7687", "b:7687"}}
	got, err := r.Resolve(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:7687", "b:7687"}, got)
}

func TestFunc_Adapts(t *testing.T) {
	var gotAddr string
	r := Func(func(ctx context.Context, address string) ([]string, error) {
		gotAddr = address
		return []string{address}, nil
	})
	got, err := r.Resolve(context.Background(), "host:1234")
	require.NoError(t, err)
	assert.Equal(t, "host:1234", gotAddr)
	assert.Equal(t, []string{"host:1234"}, got)
}

func TestSystem_ResolveLoopback(t *testing.T) {
	r := System{}
	got, err := r.Resolve(context.Background(), "localhost:7687")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, addr := range got {
		_, port, err := splitHostPort(addr)
		require.NoError(t, err)
		assert.Equal(t, "7687", port)
	}
}

func TestSplitHostPort_DefaultsPort(t *testing.T) {
	host, port, err := splitHostPort("example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "7687", port)
}
