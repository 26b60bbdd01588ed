package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropNeedle(t *testing.T) {
	cases := map[string]struct {
		value string
		want  string
	}{
		"string":        {"series_a", `"stage":"series_a"`},
		"integer":       {"12", `"employees":12`},
		"float":         {"3.5", `"score":3.5`},
		"bool":          {"true", `"active":true`},
		"null":          {"null", `"ceo":null`},
		"numeric-ish":   {"12abc", `"employees":"12abc"`},
		"quoted string": {`"12"`, `"employees":"12"`},
	}
	keys := map[string]string{
		"string":        "stage",
		"integer":       "employees",
		"float":         "score",
		"bool":          "active",
		"null":          "ceo",
		"numeric-ish":   "employees",
		"quoted string": "employees",
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, propNeedle(keys[name], tc.value), name)
	}
}
