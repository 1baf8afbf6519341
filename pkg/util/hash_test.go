package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		parts     [][]byte
		wantEmpty bool
	}{
		{
			name:      "no parts returns empty",
			parts:     nil,
			wantEmpty: true,
		},
		{
			name:      "empty parts return empty",
			parts:     [][]byte{{}, nil},
			wantEmpty: true,
		},
		{
			name:      "single part returns hash",
			parts:     [][]byte{[]byte("[current_model]\nmodel=foo\n")},
			wantEmpty: false,
		},
		{
			name:      "multiple parts return hash",
			parts:     [][]byte{[]byte("7"), []byte(`{"name":"logs"}`)},
			wantEmpty: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HashSnapshot(tt.parts...)
			if tt.wantEmpty {
				assert.Empty(t, result)
			} else {
				assert.Len(t, result, 32) // SHA256 produces 32 bytes
			}
		})
	}
}

func TestHashSnapshot_Stability(t *testing.T) {
	snapshot := []byte(`{"name":"logs","children":[]}`)
	first := HashSnapshot(snapshot)
	for range 10 {
		assert.Equal(t, first, HashSnapshot(snapshot))
	}
}

func TestHashSnapshot_Differences(t *testing.T) {
	assert.NotEqual(t, HashSnapshot([]byte("model=foo")), HashSnapshot([]byte("model=fop")))
	assert.NotEqual(t,
		HashSnapshot([]byte("ab"), []byte("c")),
		HashSnapshot([]byte("a"), []byte("bc")),
	)
}

func TestSameHash(t *testing.T) {
	h := HashSnapshot([]byte("x"))
	assert.True(t, SameHash(h, HashSnapshot([]byte("x"))))
	assert.False(t, SameHash(h, HashSnapshot([]byte("y"))))
	assert.False(t, SameHash(nil, []byte{}))
}
