package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// StartBatch validates the parameters, plans the poses, and kicks off the
// sequential generation loop. Validation and planning failures surface to
// the caller; once planning succeeded the batch has no failed terminal
// state of its own; per-item outcomes are the result. The returned
// snapshot holds every planned item in loading state.
func (s *Service) StartBatch(ctx context.Context, params domain.BatchParameters) ([]domain.Item, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	poses, err := s.gw.PlanPoses(ctx, params.Description, params.ProductImage, params.ItemCount)
	if err != nil {
		return nil, domain.WrapPlanning(err)
	}
	if len(poses) == 0 {
		return nil, domain.WrapPlanning(errors.New("no poses returned"))
	}

	items := make([]domain.Item, len(poses))
	for i, pose := range poses {
		items[i] = domain.Item{
			ID:          uuid.NewString(),
			Pose:        pose,
			Style:       params.Style,
			AspectRatio: params.AspectRatio,
			PhotoState:  domain.PhotoLoading,
			VideoState:  domain.VideoIdle,
		}
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	batchCtx, cancel := context.WithCancel(context.Background())
	s.batchCtx = batchCtx
	s.cancel = cancel
	s.params = params
	s.hasBatch = true
	s.tracker.Reset(items)
	s.mu.Unlock()

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	s.logger.Info().Int("items", len(ids)).Dur("delay", params.ItemDelay).Msg("pipeline: batch started")
	go s.run(batchCtx, params, ids)

	return s.tracker.List(), nil
}

// run executes the items strictly in planning order, one at a time, with
// the configured delay between consecutive items. A per-item failure is
// recorded on the item and never stops the loop.
func (s *Service) run(ctx context.Context, params domain.BatchParameters, ids []string) {
	for i, id := range ids {
		if i > 0 && params.ItemDelay > 0 {
			if !sleep(ctx, params.ItemDelay) {
				return
			}
		}
		it, ok := s.tracker.Get(id)
		if !ok {
			return
		}
		s.generateItem(ctx, params, it)
		if ctx.Err() != nil {
			return
		}
	}
	s.archive(ctx, params, ids)
}

func (s *Service) generateItem(ctx context.Context, params domain.BatchParameters, it domain.Item) {
	styled := params
	styled.Style = it.Style
	prompt := BuildPrompt(styled, it.Pose)

	photo, err := s.gw.SynthesizeImage(ctx, prompt, params.ProductImage, params.ModelImage)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", it.ID).Msg("pipeline: image generation failed")
		s.tracker.SetPhotoError(it.ID, err.Error())
		return
	}
	s.tracker.SetPhotoSuccess(it.ID, photo)
	s.logger.Info().Str("item_id", it.ID).Msg("pipeline: image generated")
}

// archive appends the final snapshot to history. Superseded batches are
// never archived: if any item is gone from the tracker the batch has been
// replaced mid-flight.
func (s *Service) archive(ctx context.Context, params domain.BatchParameters, ids []string) {
	if s.history == nil || ctx.Err() != nil {
		return
	}
	final := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := s.tracker.Get(id)
		if !ok {
			return
		}
		final = append(final, it)
	}
	entry := domain.HistoryEntry{
		Params:    params,
		Items:     final,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.history.Append(ctx, entry)
	if err != nil {
		s.logger.Error().Err(err).Msg("pipeline: archive batch failed")
		return
	}
	s.logger.Info().Str("history_id", id).Msg("pipeline: batch archived")
}
