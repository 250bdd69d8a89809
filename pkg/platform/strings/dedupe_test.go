package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "lowercases and dedupes",
			input:    []string{"  FOO ", "bar", "Foo", "BAR"},
			expected: []string{"foo", "bar"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"", "  ", "x"},
			expected: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"blockchain", "101"}, Terms("  Blockchain 101 blockchain "))
	assert.Empty(t, Terms("   "))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Intro to Solidity", "solidity"))
	assert.False(t, ContainsFold("Intro to Solidity", "rust"))
}
