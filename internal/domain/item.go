package domain

import "time"

// PhotoState enumerates the photo lifecycle of a tracked item.
type PhotoState string

const (
	PhotoLoading PhotoState = "loading"
	PhotoSuccess PhotoState = "success"
	PhotoError   PhotoState = "error"
)

// VideoState enumerates the video sub-state, independent of the photo.
type VideoState string

const (
	VideoIdle    VideoState = "idle"
	VideoLoading VideoState = "loading"
	VideoSuccess VideoState = "success"
	VideoError   VideoState = "error"
)

// Item is one tracked row within a batch: a planned pose, the photo
// generated for it, and the optional video derived from that photo.
// PhotoResult/PhotoError are mutually exclusive and each implies the
// matching PhotoState; same for the video fields.
type Item struct {
	ID          string
	Pose        string
	Style       Style
	AspectRatio AspectRatio

	PhotoState  PhotoState
	PhotoResult *Media
	PhotoError  string

	VideoState  VideoState
	VideoResult *Media
	VideoError  string
}

// Terminal reports whether the photo reached a terminal state.
func (it Item) Terminal() bool {
	return it.PhotoState == PhotoSuccess || it.PhotoState == PhotoError
}

// Clone returns a copy safe to hand to observers. Media payloads are
// shared; they are write-once.
func (it Item) Clone() Item {
	return it
}

// HistoryEntry archives one completed batch: the parameters that produced
// it and the final item snapshot.
type HistoryEntry struct {
	ID        string
	Params    BatchParameters
	Items     []Item
	CreatedAt time.Time
}
