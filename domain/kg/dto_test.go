package kg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOperation(t *testing.T) {
	cases := map[string]string{
		"create_node":   OpCreateNode,
		"node_create":   OpCreateNode,
		"upsert_node":   OpCreateNode,
		"CREATE_NODE":   OpCreateNode,
		" create_node ": OpCreateNode,
		"create_edge":   OpCreateEdge,
		"edge_create":   OpCreateEdge,
		"upsert_edge":   OpCreateEdge,
		"Upsert_Edge":   OpCreateEdge,
		"delete_node":   "",
		"":              "",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeOperation(input), "input %q", input)
	}
}

func TestEdgeEndpointAliases(t *testing.T) {
	cases := []struct {
		name  string
		event CommitEvent
	}{
		{"from/to/edge_type", CommitEvent{From: "n:a", To: "n:b", EdgeType: "PARTNER"}},
		{"src/dst/type", CommitEvent{Src: "n:a", Dst: "n:b", Type: "PARTNER"}},
		{"src_uid/dst_uid/label", CommitEvent{SrcUID: "n:a", DstUID: "n:b", Label: "PARTNER"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, dst, edgeType := tc.event.EdgeEndpoints()
			assert.Equal(t, "n:a", src)
			assert.Equal(t, "n:b", dst)
			assert.Equal(t, "PARTNER", edgeType)
		})
	}
}

func TestEdgeEndpointsMissing(t *testing.T) {
	src, dst, edgeType := (&CommitEvent{From: "n:a"}).EdgeEndpoints()
	assert.Equal(t, "n:a", src)
	assert.Empty(t, dst)
	assert.Empty(t, edgeType)
}

func TestCursorRoundTrip(t *testing.T) {
	token := EncodeCursor(4242)

	ltID, ok := DecodeCursor(token)
	require.True(t, ok)
	assert.Equal(t, int64(4242), ltID)
}

func TestCursorMalformed(t *testing.T) {
	for _, token := range []string{
		"",
		"not-base64!!!",
		"bm90IGpzb24",       // "not json"
		EncodeCursor(0)[:4], // truncated
	} {
		_, ok := DecodeCursor(token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestCursorRejectsNonPositiveID(t *testing.T) {
	_, ok := DecodeCursor(EncodeCursor(0))
	assert.False(t, ok)
	_, ok = DecodeCursor(EncodeCursor(-5))
	assert.False(t, ok)
}

func TestParseAsOf(t *testing.T) {
	ts, ok := ParseAsOf("2024-03-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ts)

	_, ok = ParseAsOf("")
	assert.False(t, ok)

	_, ok = ParseAsOf("yesterday")
	assert.False(t, ok)
}

func TestParseAsOfFormDecodedPlus(t *testing.T) {
	// "+02:00" arrives as " 02:00" after form decoding.
	ts, ok := ParseAsOf("2024-03-01T10:00:00 02:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), ts)
}

func TestDecodePropsTolerant(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeProps(`{"a":1}`))
	assert.Equal(t, map[string]any{}, decodeProps(""))
	assert.Equal(t, map[string]any{}, decodeProps("not json"))
}
