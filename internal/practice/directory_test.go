package practice

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
)

type countingReader struct {
	practice      *schedule.Practice
	agent         *schedule.VoiceAgent
	practiceCalls int
	agentCalls    int
}

func (r *countingReader) GetPractice(_ context.Context, id uuid.UUID) (*schedule.Practice, error) {
	r.practiceCalls++
	if r.practice == nil || r.practice.ID != id {
		return nil, apperr.Newf(apperr.CodeNotFound, "practice %s not found", id)
	}
	return r.practice, nil
}

func (r *countingReader) GetVoiceAgentByNumber(_ context.Context, number string) (*schedule.VoiceAgent, error) {
	r.agentCalls++
	if r.agent == nil || r.agent.PhoneNumber != number {
		return nil, apperr.Newf(apperr.CodeNotFound, "no voice agent for %s", number)
	}
	return r.agent, nil
}

func newTestDirectory(t *testing.T) (*countingReader, *Directory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	practiceID := uuid.New()
	reader := &countingReader{
		practice: &schedule.Practice{ID: practiceID, Name: "Cedar Creek Veterinary", Timezone: "America/Chicago"},
		agent:    &schedule.VoiceAgent{ID: uuid.New(), PracticeID: practiceID, PhoneNumber: "+15551230000", IsActive: true},
	}
	return reader, NewDirectory(reader, client, nil)
}

func TestGetCachesPractice(t *testing.T) {
	reader, dir := newTestDirectory(t)
	ctx := context.Background()
	id := reader.practice.ID

	p, err := dir.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Timezone != "America/Chicago" {
		t.Fatalf("unexpected practice: %+v", p)
	}

	if _, err := dir.Get(ctx, id); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if reader.practiceCalls != 1 {
		t.Fatalf("store hit %d times, want 1", reader.practiceCalls)
	}
}

func TestGetNotFound(t *testing.T) {
	_, dir := newTestDirectory(t)
	if _, err := dir.Get(context.Background(), uuid.New()); !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestResolveByNumberCachesBothKeys(t *testing.T) {
	reader, dir := newTestDirectory(t)
	ctx := context.Background()

	p, err := dir.ResolveByNumber(ctx, "+15551230000")
	if err != nil {
		t.Fatalf("ResolveByNumber: %v", err)
	}
	if p.ID != reader.practice.ID {
		t.Fatalf("resolved wrong practice: %+v", p)
	}

	// Second call by number is served from cache.
	if _, err := dir.ResolveByNumber(ctx, "+15551230000"); err != nil {
		t.Fatalf("second ResolveByNumber: %v", err)
	}
	if reader.agentCalls != 1 {
		t.Fatalf("agent lookup hit %d times, want 1", reader.agentCalls)
	}

	// The practice entry was primed too.
	if _, err := dir.Get(ctx, p.ID); err != nil {
		t.Fatalf("Get after resolve: %v", err)
	}
	if reader.practiceCalls != 1 {
		t.Fatalf("practice lookup hit %d times, want 1", reader.practiceCalls)
	}
}

func TestResolveByNumberRequiresNumber(t *testing.T) {
	_, dir := newTestDirectory(t)
	if _, err := dir.ResolveByNumber(context.Background(), ""); !apperr.Is(err, apperr.CodeBadRequest) {
		t.Fatalf("error = %v, want BAD_REQUEST", err)
	}
}

func TestInvalidate(t *testing.T) {
	reader, dir := newTestDirectory(t)
	ctx := context.Background()

	if _, err := dir.ResolveByNumber(ctx, "+15551230000"); err != nil {
		t.Fatalf("ResolveByNumber: %v", err)
	}
	dir.Invalidate(ctx, reader.practice.ID, "+15551230000")

	if _, err := dir.ResolveByNumber(ctx, "+15551230000"); err != nil {
		t.Fatalf("ResolveByNumber after invalidate: %v", err)
	}
	if reader.agentCalls != 2 {
		t.Fatalf("agent lookup hit %d times after invalidate, want 2", reader.agentCalls)
	}
}

// A nil redis client degrades to direct store reads.
func TestDirectoryWithoutCache(t *testing.T) {
	practiceID := uuid.New()
	reader := &countingReader{
		practice: &schedule.Practice{ID: practiceID, Name: "Cedar Creek Veterinary", Timezone: "America/Chicago"},
	}
	dir := NewDirectory(reader, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := dir.Get(ctx, practiceID); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if reader.practiceCalls != 2 {
		t.Fatalf("store hit %d times, want 2", reader.practiceCalls)
	}
}
