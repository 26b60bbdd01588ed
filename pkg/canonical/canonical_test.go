package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAtEveryDepth(t *testing.T) {
	got, err := MarshalString(map[string]any{
		"zeta": 1,
		"alpha": map[string]any{
			"nested_z": true,
			"nested_a": []any{map[string]any{"b": 1, "a": 2}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"nested_a":[{"a":2,"b":1}],"nested_z":true},"zeta":1}`, got)
}

func TestMarshal_CompactSeparators(t *testing.T) {
	got, err := MarshalString(map[string]any{"name": "Alpha", "stage": "seed"})
	require.NoError(t, err)
	assert.NotContains(t, got, " ")
	assert.Equal(t, `{"name":"Alpha","stage":"seed"}`, got)
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalString(map[string]any{"url": "https://example.com/a?b=1&c=<2>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://example.com/a?b=1&c=<2>"}`, got)
}

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"string", "hi", `"hi"`},
		{"empty map", map[string]any{}, "{}"},
		{"empty slice", []any{}, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshal_DeterministicAcrossInsertOrder(t *testing.T) {
	a := map[string]any{}
	a["x"] = 1
	a["y"] = 2
	a["z"] = 3

	b := map[string]any{}
	b["z"] = 3
	b["y"] = 2
	b["x"] = 1

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "{}"},
		{"reorders keys", `{"b": 1, "a": 2}`, `{"a":2,"b":1}`},
		{"strips whitespace", "{ \"a\" : 1 }", `{"a":1}`},
		{"invalid passes through", "not json", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHash_KnownVector(t *testing.T) {
	// sha256 of `{}`
	got, err := Hash(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", got)
}

func TestMarshal_StructRoundTrip(t *testing.T) {
	type props struct {
		Name  string `json:"name"`
		Stage string `json:"stage"`
	}
	got, err := MarshalString(props{Name: "Phase6 Demo", Stage: "seed"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Phase6 Demo","stage":"seed"}`, got)
}
