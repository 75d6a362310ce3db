package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "no values",
			input:    nil,
			expected: nil,
		},
		{
			name:     "only separators and blanks",
			input:    []string{" , ,", ""},
			expected: nil,
		},
		{
			name:     "comma separated",
			input:    []string{"a:9092, b:9092,,"},
			expected: []string{"a:9092", "b:9092"},
		},
		{
			name:     "repeated values merge in order",
			input:    []string{"access_granted,upload", "upload", "kyc_approved"},
			expected: []string{"access_granted", "upload", "kyc_approved"},
		},
		{
			name:     "preserves case",
			input:    []string{"Foo", "foo"},
			expected: []string{"Foo", "foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input...))
		})
	}
}
