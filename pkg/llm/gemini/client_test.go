package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  \n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONBlock(tt.in))
		})
	}
}

func TestTransient(t *testing.T) {
	assert.False(t, transient(assert.AnError))
	assert.True(t, transient(&connErr{}))
}

type connErr struct{}

func (e *connErr) Error() string   { return "dial tcp: connection refused" }
func (e *connErr) Timeout() bool   { return false }
func (e *connErr) Temporary() bool { return true }
