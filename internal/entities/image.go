package entities

import "time"

// Image is an original asset accepted by the upload endpoint.
type Image struct {
	Key          string `json:"key"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Variant is a rendered thumbnail as recorded in the variant registry.
type Variant struct {
	ID               int64     `json:"id"`
	OriginalKey      string    `json:"original_key"`
	CacheKey         string    `json:"cache_key"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Quality          int       `json:"quality"`
	Fit              Fit       `json:"fit"`
	Size             int       `json:"size"`
	CreatedTimestamp time.Time `json:"created_timestamp"`
}
