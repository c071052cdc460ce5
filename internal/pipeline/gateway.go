package pipeline

import (
	"context"

	"studio/internal/domain"
)

// VideoJobStatus is the poll result for a long-running video job. Done
// with an empty FailureReason means the video is retrievable via VideoRef.
type VideoJobStatus struct {
	Done          bool
	VideoRef      string
	FailureReason string
}

// Gateway is the remote generation boundary. Implementations own
// transport, auth, and transient-retry concerns; the pipeline only sees
// request/response and submit/poll contracts.
type Gateway interface {
	// PlanPoses returns at least one pose description on success.
	PlanPoses(ctx context.Context, description string, product *domain.Media, count int) ([]string, error)
	// SynthesizeImage renders one image for the fully built prompt.
	// Failure reasons (blocked by policy, malformed response, no image
	// in response) must be distinguishable in the returned error text.
	SynthesizeImage(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error)
	// SynthesizeDescription writes a product description from one image.
	SynthesizeDescription(ctx context.Context, product domain.Media) (string, error)
	// SubmitVideoJob starts an asynchronous video synthesis job and
	// returns an opaque operation handle for polling.
	SubmitVideoJob(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error)
	// PollVideoJob reports whether the job behind the handle finished.
	PollVideoJob(ctx context.Context, handle string) (VideoJobStatus, error)
	// FetchVideo downloads the finished video content.
	FetchVideo(ctx context.Context, videoRef string) (domain.Media, error)
}

// HistoryArchiver receives the final snapshot of a completed batch.
// The pipeline appends exactly once per completed batch and never reads
// history back.
type HistoryArchiver interface {
	Append(ctx context.Context, entry domain.HistoryEntry) (string, error)
}
