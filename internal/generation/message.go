package generation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// QueueMessage is the RabbitMQ body announcing a queued generation request
type QueueMessage struct {
	RequestID string `json:"request_id"`
	Kind      Kind   `json:"kind"`
}

// ParseQueueMessage decodes and validates a queue message body
func ParseQueueMessage(body []byte) (QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return QueueMessage{}, fmt.Errorf("failed to parse message JSON: %w", err)
	}

	if _, err := uuid.Parse(msg.RequestID); err != nil {
		return QueueMessage{}, fmt.Errorf("invalid request_id %q: %w", msg.RequestID, err)
	}

	kind, err := ParseKind(string(msg.Kind))
	if err != nil {
		return QueueMessage{}, err
	}
	msg.Kind = kind

	return msg, nil
}
