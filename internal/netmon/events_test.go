package netmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperState_Constants(t *testing.T) {
	assert.Equal(t, OperState("up"), OperUp)
	assert.Equal(t, OperState("down"), OperDown)
}

func TestParseOperState(t *testing.T) {
	tests := []struct {
		in   string
		want OperState
	}{
		{"up", OperUp},
		{"down", OperDown},
		{"dormant", OperDown},
		{"lowerlayerdown", OperDown},
		{"UP", OperDown},
		{"", OperDown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOperState(tt.in))
		})
	}
}
