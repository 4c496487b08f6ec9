package email

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trailtours/apiserver/internal/mq"
)

// Channel is the broker channel carrying outbound email jobs.
const Channel = "emails"

// QueueSender hands messages to the message broker instead of delivering
// them itself; the emailworker command consumes the channel and performs the
// actual delivery. A failed publish counts as a delivery failure, so the
// reset-token rollback still fires when the broker is down.
type QueueSender struct {
	queue *mq.MQ
}

// NewQueueSender constructs a sender that publishes to the given queue.
func NewQueueSender(queue *mq.MQ) *QueueSender {
	return &QueueSender{queue: queue}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}
	if _, err := s.queue.Publish(ctx, Channel, data, map[string]string{"to": msg.To}); err != nil {
		return fmt.Errorf("failed to enqueue email job: %w", err)
	}
	return nil
}

// DecodeJob parses a queued email job back into a Message.
func DecodeJob(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed email job: %w", err)
	}
	return msg, nil
}
