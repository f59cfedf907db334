package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil stays nil", nil, nil},
		{"trims and drops empties", []string{"  a ", "", "  "}, []string{"a"}},
		{"drops duplicates keeping order", []string{"b", "a", "b", "a"}, []string{"b", "a"}},
		{"duplicate after trim", []string{" liveness check failed", "liveness check failed "}, []string{"liveness check failed"}},
		{"already clean", []string{"x", "y"}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}
