package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexUpsertAndQuery(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "m1", []float64{1, 0, 0}, Payload{MemoryID: "m1", OrganizationID: "org1"}))
	require.NoError(t, idx.Upsert(ctx, "m2", []float64{0, 1, 0}, Payload{MemoryID: "m2", OrganizationID: "org1"}))
	require.NoError(t, idx.Upsert(ctx, "m3", []float64{1, 0, 0}, Payload{MemoryID: "m3", OrganizationID: "org2"}))

	matches, err := idx.Query(ctx, "org1", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "m1", matches[0].MemoryID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMemoryIndexDelete(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "m1", []float64{1, 0}, Payload{MemoryID: "m1", OrganizationID: "org1"}))
	require.NoError(t, idx.Delete(ctx, "m1"))

	matches, err := idx.Query(ctx, "org1", []float64{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndexTopKLimit(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(ctx, string(rune('a'+i)), []float64{1, float64(i)}, Payload{OrganizationID: "org1"}))
	}
	matches, err := idx.Query(ctx, "org1", []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
