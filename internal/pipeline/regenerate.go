package pipeline

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/domain"
)

// Regenerate re-runs image generation for exactly one item with an
// overridden style and pose, reusing the batch's original reference
// images. Calling it with the item's current style and pose is a no-op:
// no transition, no gateway call. At most one regeneration runs per item;
// a call while the photo is already loading is rejected. Regenerating
// also discards any in-flight video job for the item, since its result
// would belong to the photo being replaced.
func (s *Service) Regenerate(ctx context.Context, id string, style domain.Style, pose string) (domain.Item, error) {
	batchCtx, ok := s.session()
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: no active batch", domain.ErrNotFound)
	}
	params, _ := s.Params()

	it, started, err := s.tracker.BeginRegeneration(id, style, pose)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		return domain.Item{}, fmt.Errorf("%w: item %s is already generating", domain.ErrConflict, id)
	default:
		return domain.Item{}, fmt.Errorf("%w: item %s", err, id)
	}
	if !started {
		return it, nil
	}

	s.logger.Info().Str("item_id", id).Str("style", string(style)).Msg("pipeline: regeneration started")

	go func() {
		styled := params
		styled.Style = style
		prompt := BuildPrompt(styled, pose)
		photo, err := s.gw.SynthesizeImage(batchCtx, prompt, params.ProductImage, params.ModelImage)
		if batchCtx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("item_id", id).Msg("pipeline: regeneration failed")
			s.tracker.SetPhotoError(id, err.Error())
			return
		}
		s.tracker.SetPhotoSuccess(id, photo)
		s.logger.Info().Str("item_id", id).Msg("pipeline: regeneration finished")
	}()

	return it, nil
}
