package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseThinkingLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want ThinkingLevel
	}{
		{"none", ThinkingNone},
		{"low", ThinkingLow},
		{"medium", ThinkingMedium},
		{"high", ThinkingHigh},
		{"", ThinkingNone},
		{"extreme", ThinkingNone},
		{"LOW", ThinkingNone},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ParseThinkingLevel(c.in), "input %q", c.in)
	}
}
