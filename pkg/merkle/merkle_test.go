package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sha(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func TestRoot_Empty(t *testing.T) {
	assert.Equal(t, "", Root(nil))
	assert.Equal(t, "", Root([][]byte{}))
}

func TestRoot_SingleLeafIsItsOwnRoot(t *testing.T) {
	leaf := []byte(`{"n":["n:alpha","Company",{"name":"Alpha"}]}`)
	assert.Equal(t, hex.EncodeToString(sha(leaf)), Root([][]byte{leaf}))
}

func TestRoot_TwoLeaves(t *testing.T) {
	a, b := []byte("leaf-a"), []byte("leaf-b")
	ha, hb := sha(a), sha(b)
	want := hex.EncodeToString(sha(append(append([]byte{}, ha...), hb...)))
	assert.Equal(t, want, Root([][]byte{a, b}))
}

func TestRoot_OddLeafDuplicated(t *testing.T) {
	a, b, c := []byte("a"), []byte("b"), []byte("c")
	ha, hb, hc := sha(a), sha(b), sha(c)
	left := sha(append(append([]byte{}, ha...), hb...))
	right := sha(append(append([]byte{}, hc...), hc...))
	want := hex.EncodeToString(sha(append(append([]byte{}, left...), right...)))
	assert.Equal(t, want, Root([][]byte{a, b, c}))
}

func TestRoot_OrderSensitive(t *testing.T) {
	a, b := []byte("a"), []byte("b")
	assert.NotEqual(t, Root([][]byte{a, b}), Root([][]byte{b, a}))
}

func TestRoot_Deterministic(t *testing.T) {
	leaves := [][]byte{[]byte("x"), []byte("y"), []byte("z"), []byte("w"), []byte("v")}
	assert.Equal(t, Root(leaves), Root(leaves))
}
