package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffProperties(t *testing.T) {
	from := map[string]any{"name": "Phase6 Demo", "stage": "seed", "hq": "Oslo"}
	to := map[string]any{"name": "Phase6 Demo", "stage": "series_a", "employees": float64(12)}

	diff := DiffProperties(from, to)

	assert.Equal(t, map[string]any{"employees": float64(12)}, diff.Added)
	assert.Equal(t, map[string]any{"hq": "Oslo"}, diff.Removed)
	require.Contains(t, diff.Changed, "stage")
	assert.Equal(t, "seed", diff.Changed["stage"].From)
	assert.Equal(t, "series_a", diff.Changed["stage"].To)
	assert.NotContains(t, diff.Changed, "name")
}

func TestDiffPropertiesIdentical(t *testing.T) {
	props := map[string]any{"a": float64(1), "b": "x"}

	diff := DiffProperties(props, props)

	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Changed)
}

func TestDiffPropertiesNestedValues(t *testing.T) {
	from := map[string]any{"meta": map[string]any{"k": "v1"}}
	to := map[string]any{"meta": map[string]any{"k": "v2"}}

	diff := DiffProperties(from, to)

	require.Contains(t, diff.Changed, "meta")
}

func TestDiffEdges(t *testing.T) {
	from := []*Edge{
		{SrcUID: "n:a", DstUID: "n:b", Type: "PARTNER", Properties: `{}`},
		{SrcUID: "n:a", DstUID: "n:c", Type: "OWNS", Properties: `{"share":0.4}`},
	}
	to := []*Edge{
		{SrcUID: "n:a", DstUID: "n:b", Type: "PARTNER", Properties: `{}`},
		{SrcUID: "n:a", DstUID: "n:d", Type: "PARTNER", Properties: `{}`},
	}

	diff := DiffEdges(from, to)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "n:d", diff.Added[0].Dst)
	assert.Equal(t, "PARTNER", diff.Added[0].Type)

	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "n:c", diff.Removed[0].Dst)
}

func TestDiffEdgesPropertyChangeIsAddPlusRemove(t *testing.T) {
	from := []*Edge{{SrcUID: "n:a", DstUID: "n:b", Type: "OWNS", Properties: `{"share":0.4}`}}
	to := []*Edge{{SrcUID: "n:a", DstUID: "n:b", Type: "OWNS", Properties: `{"share":0.6}`}}

	diff := DiffEdges(from, to)

	require.Len(t, diff.Added, 1)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, diff.Added[0].Dst, diff.Removed[0].Dst)
	assert.NotEqual(t, diff.Added[0].PropsHash, diff.Removed[0].PropsHash)
}

func TestDiffEdgesWhitespaceInsensitive(t *testing.T) {
	// Key order and whitespace must not affect the edge identity.
	from := []*Edge{{SrcUID: "n:a", DstUID: "n:b", Type: "OWNS", Properties: `{"a": 1, "b": 2}`}}
	to := []*Edge{{SrcUID: "n:a", DstUID: "n:b", Type: "OWNS", Properties: `{"b":2,"a":1}`}}

	diff := DiffEdges(from, to)

	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
}

func TestMergeAddedDeduplicates(t *testing.T) {
	base := []EdgeRef{{Dst: "n:b", Type: "PARTNER", PropsHash: "h1"}}
	more := []EdgeRef{
		{Dst: "n:b", Type: "PARTNER", PropsHash: "h1"},
		{Dst: "n:c", Type: "PARTNER", PropsHash: "h2"},
		{Dst: "n:c", Type: "PARTNER", PropsHash: "h2"},
	}

	merged := mergeAdded(base, more)

	require.Len(t, merged, 2)
	assert.Equal(t, "n:b", merged[0].Dst)
	assert.Equal(t, "n:c", merged[1].Dst)

	// A second pass with the same input is a no-op.
	again := mergeAdded(merged, more)
	assert.Equal(t, merged, again)
}
