package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisherHandle(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.us-east-1.amazonaws.com/123/appointment-events")

	entry := OutboxEntry{
		ID:         uuid.New(),
		PracticeID: uuid.New(),
		Type:       TypeAppointmentRescheduled,
		Payload:    json.RawMessage(`{"duration_minutes":45}`),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := pub.Handle(context.Background(), entry); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.us-east-1.amazonaws.com/123/appointment-events" {
		t.Fatalf("queue url = %s", *input.QueueUrl)
	}

	var env envelope
	if err := json.Unmarshal([]byte(*input.MessageBody), &env); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if env.EventID != entry.ID || env.PracticeID != entry.PracticeID {
		t.Fatalf("envelope ids = %+v", env)
	}
	if env.Type != TypeAppointmentRescheduled {
		t.Fatalf("envelope type = %s", env.Type)
	}
	if !env.OccurredAt.Equal(entry.CreatedAt) {
		t.Fatalf("occurred_at = %s, want %s", env.OccurredAt, entry.CreatedAt)
	}
	if string(env.Payload) != `{"duration_minutes":45}` {
		t.Fatalf("payload = %s", env.Payload)
	}
}

func TestSQSPublisherHandleSendError(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	pub := NewSQSPublisher(client, "https://example/queue")

	err := pub.Handle(context.Background(), OutboxEntry{ID: uuid.New(), Payload: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error from send failure")
	}
}
