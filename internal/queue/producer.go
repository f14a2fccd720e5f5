package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/isntfunny/kitchenpace-sub002/internal/redisholder"
	"github.com/redis/go-redis/v9"
)

type Producer struct {
	r      redisholder.Source
	stream string
	maxLen int64
}

func NewProducer(r redisholder.Source, stream string, maxLen int64) *Producer {
	return &Producer{r: r, stream: stream, maxLen: maxLen}
}

// EnqueueWarm appends a warm-up request to the stream as JSON.
func (p *Producer) EnqueueWarm(ctx context.Context, job WarmJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal warm job: %w", err)
	}
	return p.r.Get().XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"payload": string(raw),
			"attempt": 0,
		},
	}).Err()
}
