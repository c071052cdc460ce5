// Package history archives completed generation batches. The pipeline
// appends exactly once per completed batch; listing and deletion serve
// the presentation layer only.
package history

import (
	"context"
	"time"

	"studio/internal/domain"
)

// ItemRecord is the archived snapshot of one tracked item. Asset bytes
// live in the asset store; records carry their storage keys.
type ItemRecord struct {
	ID          string             `json:"id"`
	Pose        string             `json:"pose"`
	Style       domain.Style       `json:"style"`
	AspectRatio domain.AspectRatio `json:"aspect_ratio"`
	PhotoState  domain.PhotoState  `json:"photo_state"`
	PhotoError  string             `json:"photo_error,omitempty"`
	PhotoKey    string             `json:"photo_key,omitempty"`
	VideoState  domain.VideoState  `json:"video_state"`
	VideoError  string             `json:"video_error,omitempty"`
	VideoKey    string             `json:"video_key,omitempty"`
}

// ParamsRecord is the archived form of the batch parameters. Reference
// image bytes are not retained; only their presence is.
type ParamsRecord struct {
	Description     string             `json:"description"`
	HadProductImage bool               `json:"had_product_image"`
	HadModelImage   bool               `json:"had_model_image"`
	ItemCount       int                `json:"item_count"`
	DelaySeconds    float64            `json:"delay_seconds"`
	Style           domain.Style       `json:"style"`
	AspectRatio     domain.AspectRatio `json:"aspect_ratio"`
}

// Record is one archived batch.
type Record struct {
	ID        string       `json:"id"`
	Params    ParamsRecord `json:"params"`
	Items     []ItemRecord `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

// Store is the history contract consumed by the pipeline (Append) and
// the presentation layer (the rest).
type Store interface {
	Append(ctx context.Context, entry domain.HistoryEntry) (string, error)
	List(ctx context.Context) ([]Record, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func paramsRecord(p domain.BatchParameters) ParamsRecord {
	return ParamsRecord{
		Description:     p.Description,
		HadProductImage: p.ProductImage != nil && !p.ProductImage.IsZero(),
		HadModelImage:   p.ModelImage != nil && !p.ModelImage.IsZero(),
		ItemCount:       p.ItemCount,
		DelaySeconds:    p.ItemDelay.Seconds(),
		Style:           p.Style,
		AspectRatio:     p.AspectRatio,
	}
}

func itemRecord(it domain.Item, photoKey, videoKey string) ItemRecord {
	return ItemRecord{
		ID:          it.ID,
		Pose:        it.Pose,
		Style:       it.Style,
		AspectRatio: it.AspectRatio,
		PhotoState:  it.PhotoState,
		PhotoError:  it.PhotoError,
		PhotoKey:    photoKey,
		VideoState:  it.VideoState,
		VideoError:  it.VideoError,
		VideoKey:    videoKey,
	}
}
