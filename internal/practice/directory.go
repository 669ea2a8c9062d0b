// Package practice resolves practices and their voice lines. Lookups sit on
// the hot path of every inbound call, so results are cached in Redis with a
// short TTL in front of Postgres.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

const cacheTTL = 5 * time.Minute

// Reader is the store surface the directory fronts.
type Reader interface {
	GetPractice(ctx context.Context, id uuid.UUID) (*schedule.Practice, error)
	GetVoiceAgentByNumber(ctx context.Context, number string) (*schedule.VoiceAgent, error)
}

// Directory is a read-through cache over the practice tables. A nil redis
// client degrades to direct store reads.
type Directory struct {
	reader Reader
	redis  *redis.Client
	logger *logging.Logger
}

func NewDirectory(reader Reader, redisClient *redis.Client, logger *logging.Logger) *Directory {
	if reader == nil {
		panic("practice: reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{reader: reader, redis: redisClient, logger: logger}
}

func practiceKey(id uuid.UUID) string {
	return fmt.Sprintf("practice:cfg:%s", id)
}

func numberKey(number string) string {
	return fmt.Sprintf("practice:number:%s", number)
}

// Get loads a practice, preferring the cache. Cache failures fall through
// to Postgres.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*schedule.Practice, error) {
	if d.redis != nil {
		data, err := d.redis.Get(ctx, practiceKey(id)).Bytes()
		if err == nil {
			var p schedule.Practice
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		} else if err != redis.Nil {
			d.logger.Warn("practice cache read failed", "error", err, "practice_id", id)
		}
	}

	p, err := d.reader.GetPractice(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache(ctx, practiceKey(id), p)
	return p, nil
}

// ResolveByNumber maps an inbound phone number to its practice via the
// voice agent binding.
func (d *Directory) ResolveByNumber(ctx context.Context, number string) (*schedule.Practice, error) {
	if number == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "phone number is required")
	}
	if d.redis != nil {
		data, err := d.redis.Get(ctx, numberKey(number)).Bytes()
		if err == nil {
			var p schedule.Practice
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		} else if err != redis.Nil {
			d.logger.Warn("practice cache read failed", "error", err, "number", number)
		}
	}

	agent, err := d.reader.GetVoiceAgentByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	p, err := d.reader.GetPractice(ctx, agent.PracticeID)
	if err != nil {
		return nil, err
	}
	d.cache(ctx, numberKey(number), p)
	d.cache(ctx, practiceKey(p.ID), p)
	return p, nil
}

// Invalidate drops the cached entries for a practice after an admin edit.
func (d *Directory) Invalidate(ctx context.Context, id uuid.UUID, numbers ...string) {
	if d.redis == nil {
		return
	}
	keys := []string{practiceKey(id)}
	for _, n := range numbers {
		keys = append(keys, numberKey(n))
	}
	if err := d.redis.Del(ctx, keys...).Err(); err != nil {
		d.logger.Warn("practice cache invalidate failed", "error", err, "practice_id", id)
	}
}

func (d *Directory) cache(ctx context.Context, key string, p *schedule.Practice) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := d.redis.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		d.logger.Warn("practice cache write failed", "error", err, "key", key)
	}
}
