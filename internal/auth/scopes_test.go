package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopes(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{input: "direct:api", want: []string{"direct:api"}},
		{input: "direct:api metrika:read", want: []string{"direct:api", "metrika:read"}},
		{input: "direct:api, metrika:read,", want: []string{"direct:api", "metrika:read"}},
		{input: "  ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseScopes(tt.input))
		})
	}
}
