package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-intel/aurora-core/pkg/canonical"
)

func TestSnapshotHashEmptyGraph(t *testing.T) {
	hash, err := SnapshotHash(nil, nil)
	require.NoError(t, err)

	// sha256 of the canonical empty payload {"edges":[],"nodes":[]}
	assert.Equal(t, "57501e5c6808b3e14852a4ea21dc7873abf9409032a06f9b740c973e83f62cf7", hash)
}

func TestSnapshotHashDeterministic(t *testing.T) {
	nodes := []*Node{
		{UID: "n:alpha", Type: "Company", Properties: `{"name":"Alpha"}`},
		{UID: "n:beta", Type: "Company", Properties: `{"name":"Beta"}`},
	}
	edges := []*Edge{
		{SrcUID: "n:alpha", DstUID: "n:beta", Type: "PARTNER", Properties: `{}`},
	}

	h1, err := SnapshotHash(nodes, edges)
	require.NoError(t, err)
	h2, err := SnapshotHash(nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSnapshotHashIgnoresPropertyFormatting(t *testing.T) {
	a := []*Node{{UID: "n:x", Type: "Company", Properties: `{"b": 2, "a": 1}`}}
	b := []*Node{{UID: "n:x", Type: "Company", Properties: `{"a":1,"b":2}`}}

	h1, err := SnapshotHash(a, nil)
	require.NoError(t, err)
	h2, err := SnapshotHash(b, nil)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestSnapshotHashSensitiveToContent(t *testing.T) {
	base := []*Node{{UID: "n:x", Type: "Company", Properties: `{"stage":"seed"}`}}
	changed := []*Node{{UID: "n:x", Type: "Company", Properties: `{"stage":"series_a"}`}}

	h1, err := SnapshotHash(base, nil)
	require.NoError(t, err)
	h2, err := SnapshotHash(changed, nil)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestSnapshotMerkleRootEmpty(t *testing.T) {
	root, err := SnapshotMerkleRoot(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestSnapshotMerkleRootSingleLeaf(t *testing.T) {
	nodes := []*Node{{UID: "n:alpha", Type: "Company", Properties: `{"name":"Alpha"}`}}

	root, err := SnapshotMerkleRoot(nodes, nil)
	require.NoError(t, err)
	require.NotNil(t, root)

	// A single-leaf tree is the leaf hash itself.
	leaf, err := canonical.Marshal(map[string]any{
		"n": []any{"n:alpha", "Company", map[string]any{"name": "Alpha"}},
	})
	require.NoError(t, err)
	assert.Equal(t, canonical.HashBytes(leaf), *root)
}

func TestSnapshotMerkleRootDeterministic(t *testing.T) {
	nodes := []*Node{
		{UID: "n:alpha", Type: "Company", Properties: `{}`},
		{UID: "n:beta", Type: "Company", Properties: `{}`},
	}
	edges := []*Edge{
		{SrcUID: "n:alpha", DstUID: "n:beta", Type: "PARTNER", Properties: `{}`},
	}

	r1, err := SnapshotMerkleRoot(nodes, edges)
	require.NoError(t, err)
	r2, err := SnapshotMerkleRoot(nodes, edges)
	require.NoError(t, err)

	require.NotNil(t, r1)
	require.NotNil(t, r2)
	assert.Equal(t, *r1, *r2)
}

func TestSnapshotMerkleRootOrderSensitive(t *testing.T) {
	a := []*Node{
		{UID: "n:alpha", Type: "Company", Properties: `{}`},
		{UID: "n:beta", Type: "Company", Properties: `{}`},
	}
	b := []*Node{a[1], a[0]}

	r1, err := SnapshotMerkleRoot(a, nil)
	require.NoError(t, err)
	r2, err := SnapshotMerkleRoot(b, nil)
	require.NoError(t, err)

	// The store feeds rows ordered by (uid, type); a different order
	// is a different tree.
	assert.NotEqual(t, *r1, *r2)
}
