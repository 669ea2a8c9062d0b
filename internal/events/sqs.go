package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

// sqsAPI is the slice of the SQS client the publisher calls.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// envelope is the wire shape placed on the queue.
type envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	PracticeID uuid.UUID       `json:"practice_id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// SQSPublisher delivers outbox entries to an SQS queue. Consumers
// deduplicate on event_id since outbox delivery is at-least-once.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client required")
	}
	if queueURL == "" {
		panic("events: SQS queue URL required")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Handle implements DeliveryHandler.
func (p *SQSPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := json.Marshal(envelope{
		EventID:    entry.ID,
		PracticeID: entry.PracticeID,
		Type:       entry.Type,
		OccurredAt: entry.CreatedAt,
		Payload:    entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("events: send to sqs: %w", err)
	}
	return nil
}
