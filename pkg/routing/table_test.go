package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
)

func sampleRecord() map[string]any {
	return map[string]any{
		"ttl": int64(300),
		"servers": []any{
			map[string]any{"role": "ROUTE", "addresses": []any{"r1:7687", "r2:7687"}},
			map[string]any{"role": "READ", "addresses": []any{"s1:7687", "s2:7687"}},
			map[string]any{"role": "WRITE", "addresses": []any{"s1:7687"}},
		},
	}
}

func TestParseTable_Valid(t *testing.T) {
	tbl, err := ParseTable(sampleRecord(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1:7687", "r2:7687"}, tbl.Routers)
	assert.Equal(t, []string{"s1:7687", "s2:7687"}, tbl.Readers)
	assert.Equal(t, []string{"s1:7687"}, tbl.Writers)
	assert.False(t, tbl.MissingWriter)
}

func TestParseTable_MissingRoute(t *testing.T) {
	rec := sampleRecord()
	rec["servers"] = []any{
		map[string]any{"role": "READ", "addresses": []any{"s1:7687"}},
	}
	_, err := ParseTable(rec, time.Now())
	require.Error(t, err)
}

func TestParseTable_MissingRead(t *testing.T) {
	rec := sampleRecord()
	rec["servers"] = []any{
		map[string]any{"role": "ROUTE", "addresses": []any{"r1:7687"}},
	}
	_, err := ParseTable(rec, time.Now())
	require.Error(t, err)
}

func TestParseTable_MissingWriterFlag(t *testing.T) {
	rec := sampleRecord()
	rec["servers"] = []any{
		map[string]any{"role": "ROUTE", "addresses": []any{"r1:7687"}},
		map[string]any{"role": "READ", "addresses": []any{"s1:7687"}},
	}
	tbl, err := ParseTable(rec, time.Now())
	require.NoError(t, err)
	assert.True(t, tbl.MissingWriter)
	assert.True(t, tbl.IsFresh(bolt.AccessModeRead))
	assert.False(t, tbl.IsFresh(bolt.AccessModeWrite))
}

func TestParseTable_UnknownRoleIgnored(t *testing.T) {
	rec := sampleRecord()
	rec["servers"] = append(rec["servers"].([]any), map[string]any{"role": "BACKUP", "addresses": []any{"b1:7687"}})
	tbl, err := ParseTable(rec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1:7687", "r2:7687"}, tbl.Routers)
}

func TestTable_IsFresh_ExpiresWithTTL(t *testing.T) {
	tbl, err := ParseTable(sampleRecord(), time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, tbl.IsFresh(bolt.AccessModeRead))
}

func TestTable_RemoveRouter(t *testing.T) {
	tbl, err := ParseTable(sampleRecord(), time.Now())
	require.NoError(t, err)
	tbl.RemoveRouter("r1:7687")
	assert.Equal(t, []string{"r2:7687"}, tbl.Routers)
}

func TestTable_Deactivate(t *testing.T) {
	tbl, err := ParseTable(sampleRecord(), time.Now())
	require.NoError(t, err)
	tbl.Deactivate("s1:7687")
	assert.Equal(t, []string{"s2:7687"}, tbl.Readers)
	assert.Empty(t, tbl.Writers)
}
