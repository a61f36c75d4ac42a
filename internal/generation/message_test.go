package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueueMessage(t *testing.T) {
	msg, err := ParseQueueMessage([]byte(`{"request_id":"0b6f3c52-9a0e-4c1e-9f5d-2f7c6f0f8d11","kind":"topics"}`))
	require.NoError(t, err)
	assert.Equal(t, "0b6f3c52-9a0e-4c1e-9f5d-2f7c6f0f8d11", msg.RequestID)
	assert.Equal(t, KindTopics, msg.Kind)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `request`},
		{name: "bad uuid", body: `{"request_id":"r1","kind":"topics"}`},
		{name: "unknown kind", body: `{"request_id":"0b6f3c52-9a0e-4c1e-9f5d-2f7c6f0f8d11","kind":"essay"}`},
		{name: "missing kind", body: `{"request_id":"0b6f3c52-9a0e-4c1e-9f5d-2f7c6f0f8d11"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQueueMessage([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}
