package pipeline

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/domain"
)

// GenerateVideo animates one item's photo into a short video by driving
// the gateway's submit/poll/fetch protocol. The video sub-state runs
// independently of the photo state: Idle -> Loading -> Success or Error,
// and a fresh request from either terminal state re-enters Loading.
// Requesting a video while one is already loading is rejected without
// submitting a second job. The poll loop has no maximum duration; it
// stops when the job finishes, the batch is superseded, or the item is
// regenerated out from under it.
func (s *Service) GenerateVideo(ctx context.Context, id string) (domain.Item, error) {
	batchCtx, ok := s.session()
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: no active batch", domain.ErrNotFound)
	}

	it, episode, err := s.tracker.BeginVideo(id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPhotoNotReady):
		return domain.Item{}, fmt.Errorf("%w: item %s has no generated photo", domain.ErrPhotoNotReady, id)
	case errors.Is(err, domain.ErrConflict):
		return domain.Item{}, fmt.Errorf("%w: video job for item %s is still running", domain.ErrConflict, id)
	default:
		return domain.Item{}, fmt.Errorf("%w: item %s", err, id)
	}

	s.logger.Info().Str("item_id", id).Msg("pipeline: video job starting")
	go s.runVideoJob(batchCtx, id, episode, *it.PhotoResult, it.AspectRatio)

	return it, nil
}

func (s *Service) runVideoJob(ctx context.Context, id string, episode int, photo domain.Media, aspect domain.AspectRatio) {
	handle, err := s.gw.SubmitVideoJob(ctx, photo, aspect)
	if err != nil {
		s.videoFailed(ctx, id, episode, err.Error())
		return
	}
	s.logger.Debug().Str("item_id", id).Str("handle", handle).Msg("pipeline: video job submitted")

	for {
		if !sleep(ctx, s.pollInterval) {
			return
		}
		if !s.tracker.VideoEpisodeActive(id, episode) {
			return
		}
		status, err := s.gw.PollVideoJob(ctx, handle)
		if err != nil {
			s.videoFailed(ctx, id, episode, err.Error())
			return
		}
		if !status.Done {
			continue
		}
		if status.FailureReason != "" {
			s.videoFailed(ctx, id, episode, status.FailureReason)
			return
		}
		video, err := s.gw.FetchVideo(ctx, status.VideoRef)
		if err != nil {
			s.videoFailed(ctx, id, episode, err.Error())
			return
		}
		s.tracker.SetVideoSuccess(id, episode, video)
		s.logger.Info().Str("item_id", id).Msg("pipeline: video job finished")
		return
	}
}

// videoFailed records the failure unless the batch was superseded, in
// which case the stale update must not leak into the new batch. The
// episode token keeps it from touching a regenerated item either way.
func (s *Service) videoFailed(ctx context.Context, id string, episode int, reason string) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn().Str("item_id", id).Str("reason", reason).Msg("pipeline: video job failed")
	s.tracker.SetVideoError(id, episode, reason)
}
