package queue

import "github.com/isntfunny/kitchenpace-sub002/internal/entities"

// WarmJob is what we push to Redis Streams.
// No bytes here, workers fetch the original by Key.
type WarmJob struct {
	Key     string       `json:"key"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Quality int          `json:"quality"`
	Fit     entities.Fit `json:"fit"`
}

func NewWarmJob(p entities.ThumbnailParams) WarmJob {
	return WarmJob{Key: p.Key, Width: p.Width, Height: p.Height, Quality: p.Quality, Fit: p.Fit}
}

func (j WarmJob) Params() entities.ThumbnailParams {
	return entities.ThumbnailParams{Key: j.Key, Width: j.Width, Height: j.Height, Quality: j.Quality, Fit: j.Fit}
}
