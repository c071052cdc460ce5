package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

type fakeGateway struct {
	planPoses             func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error)
	synthesizeImage       func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error)
	synthesizeDescription func(ctx context.Context, product domain.Media) (string, error)
	submitVideoJob        func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error)
	pollVideoJob          func(ctx context.Context, handle string) (VideoJobStatus, error)
	fetchVideo            func(ctx context.Context, ref string) (domain.Media, error)
}

func (f *fakeGateway) PlanPoses(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
	if f.planPoses != nil {
		return f.planPoses(ctx, description, product, count)
	}
	return nil, errors.New("planPoses not implemented")
}

func (f *fakeGateway) SynthesizeImage(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
	if f.synthesizeImage != nil {
		return f.synthesizeImage(ctx, prompt, product, model)
	}
	return domain.Media{}, errors.New("synthesizeImage not implemented")
}

func (f *fakeGateway) SynthesizeDescription(ctx context.Context, product domain.Media) (string, error) {
	if f.synthesizeDescription != nil {
		return f.synthesizeDescription(ctx, product)
	}
	return "", errors.New("synthesizeDescription not implemented")
}

func (f *fakeGateway) SubmitVideoJob(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
	if f.submitVideoJob != nil {
		return f.submitVideoJob(ctx, photo, aspect)
	}
	return "", errors.New("submitVideoJob not implemented")
}

func (f *fakeGateway) PollVideoJob(ctx context.Context, handle string) (VideoJobStatus, error) {
	if f.pollVideoJob != nil {
		return f.pollVideoJob(ctx, handle)
	}
	return VideoJobStatus{}, errors.New("pollVideoJob not implemented")
}

func (f *fakeGateway) FetchVideo(ctx context.Context, ref string) (domain.Media, error) {
	if f.fetchVideo != nil {
		return f.fetchVideo(ctx, ref)
	}
	return domain.Media{}, errors.New("fetchVideo not implemented")
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (h *fakeHistory) Append(ctx context.Context, entry domain.HistoryEntry) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return fmt.Sprintf("hist-%d", len(h.entries)), nil
}

func (h *fakeHistory) snapshot() []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func newTestService(t *testing.T, gw Gateway, history HistoryArchiver) *Service {
	t.Helper()
	svc := NewService(Options{
		Gateway:      gw,
		History:      history,
		Logger:       zerolog.New(io.Discard),
		PollInterval: time.Millisecond,
	})
	t.Cleanup(svc.Shutdown)
	return svc
}

func validParams() domain.BatchParameters {
	return domain.BatchParameters{
		Description: "ceramic espresso mug",
		ItemCount:   3,
		Style:       domain.StyleStudio,
		AspectRatio: domain.AspectSquare,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startSettledBatch(t *testing.T, svc *Service, params domain.BatchParameters) []domain.Item {
	t.Helper()
	if _, err := svc.StartBatch(context.Background(), params); err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	waitFor(t, "batch to settle", func() bool {
		for _, it := range svc.Items() {
			if !it.Terminal() {
				return false
			}
		}
		return true
	})
	return svc.Items()
}

func TestStartBatchRejectsInvalidParameters(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, nil)

	params := validParams()
	params.ItemCount = 0
	if _, err := svc.StartBatch(context.Background(), params); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	params = validParams()
	params.ItemDelay = 11 * time.Second
	if _, err := svc.StartBatch(context.Background(), params); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	params = validParams()
	params.AspectRatio = "2:3"
	if _, err := svc.StartBatch(context.Background(), params); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestStartBatchWrapsPlanningFailure(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	svc := newTestService(t, gw, nil)

	_, err := svc.StartBatch(context.Background(), validParams())
	if !errors.Is(err, domain.ErrPlanning) {
		t.Fatalf("error = %v, want ErrPlanning", err)
	}
	if len(svc.Items()) != 0 {
		t.Fatal("no items may exist after a planning failure")
	}
}

func TestStartBatchRejectsEmptyPlan(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{}, nil
		},
	}
	svc := newTestService(t, gw, nil)

	if _, err := svc.StartBatch(context.Background(), validParams()); !errors.Is(err, domain.ErrPlanning) {
		t.Fatalf("error = %v, want ErrPlanning", err)
	}
}

func TestStartBatchGeneratesAllItemsInOrder(t *testing.T) {
	var mu sync.Mutex
	var prompts []string
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view", "side view", "in hand"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			mu.Lock()
			prompts = append(prompts, prompt)
			mu.Unlock()
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	history := &fakeHistory{}
	svc := newTestService(t, gw, history)

	initial, err := svc.StartBatch(context.Background(), validParams())
	if err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	if len(initial) != 3 {
		t.Fatalf("initial snapshot has %d items, want 3", len(initial))
	}
	for _, it := range initial {
		if it.PhotoState != domain.PhotoLoading || it.VideoState != domain.VideoIdle {
			t.Fatalf("fresh item not loading/idle: %#v", it)
		}
	}

	waitFor(t, "all items to succeed", func() bool {
		for _, it := range svc.Items() {
			if it.PhotoState != domain.PhotoSuccess {
				return false
			}
		}
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	if len(prompts) != 3 {
		t.Fatalf("SynthesizeImage called %d times, want 3", len(prompts))
	}
	poses := []string{"front view", "side view", "in hand"}
	for i, prompt := range prompts {
		want := "Pose and framing: " + poses[i] + "."
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt %d missing %q:\n%s", i, want, prompt)
		}
	}

	waitFor(t, "history append", func() bool { return len(history.snapshot()) == 1 })
	entry := history.snapshot()[0]
	if len(entry.Items) != 3 || entry.Params.Description != "ceramic espresso mug" {
		t.Fatalf("unexpected history entry: %#v", entry)
	}
}

func TestStartBatchPacesItems(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"a", "b", "c"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	svc := newTestService(t, gw, nil)

	params := validParams()
	params.ItemDelay = 30 * time.Millisecond

	start := time.Now()
	if _, err := svc.StartBatch(context.Background(), params); err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	waitFor(t, "batch to settle", func() bool {
		for _, it := range svc.Items() {
			if !it.Terminal() {
				return false
			}
		}
		return true
	})

	// Two inter-item gaps for three items; no delay before the first.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("sequential phase took %s, want >= 60ms", elapsed)
	}
}

func TestStartBatchIsolatesItemFailures(t *testing.T) {
	var calls int
	var mu sync.Mutex
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"a", "b", "c"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 2 {
				return domain.Media{}, errors.New("blocked by safety policy: SAFETY")
			}
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	history := &fakeHistory{}
	svc := newTestService(t, gw, history)

	items := startSettledBatch(t, svc, validParams())
	if items[0].PhotoState != domain.PhotoSuccess || items[2].PhotoState != domain.PhotoSuccess {
		t.Fatalf("surrounding items must succeed: %#v", items)
	}
	if items[1].PhotoState != domain.PhotoError {
		t.Fatalf("second item state = %s, want error", items[1].PhotoState)
	}
	if items[1].PhotoError != "blocked by safety policy: SAFETY" {
		t.Fatalf("failure reason = %q", items[1].PhotoError)
	}

	waitFor(t, "history append", func() bool { return len(history.snapshot()) == 1 })
}

func TestStartBatchSupersedesPreviousBatch(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			if description == "first" {
				return []string{"slow pose"}, nil
			}
			return []string{"fast pose"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			if strings.Contains(prompt, "slow pose") {
				select {
				case <-release:
				case <-ctx.Done():
					return domain.Media{}, ctx.Err()
				}
			}
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	history := &fakeHistory{}
	svc := newTestService(t, gw, history)

	first := validParams()
	first.Description = "first"
	first.ItemCount = 1
	if _, err := svc.StartBatch(context.Background(), first); err != nil {
		t.Fatalf("first StartBatch returned error: %v", err)
	}
	firstItems := svc.Items()

	second := validParams()
	second.Description = "second"
	second.ItemCount = 1
	if _, err := svc.StartBatch(context.Background(), second); err != nil {
		t.Fatalf("second StartBatch returned error: %v", err)
	}
	close(release)

	waitFor(t, "second batch to settle", func() bool {
		items := svc.Items()
		return len(items) == 1 && items[0].Terminal()
	})

	if _, ok := svc.Item(firstItems[0].ID); ok {
		t.Fatal("superseded item still tracked")
	}
	if params, ok := svc.Params(); !ok || params.Description != "second" {
		t.Fatalf("current params = %#v", params)
	}

	waitFor(t, "history append", func() bool { return len(history.snapshot()) >= 1 })
	// Give the canceled batch a moment to misbehave, then check it didn't.
	time.Sleep(20 * time.Millisecond)
	entries := history.snapshot()
	if len(entries) != 1 || entries[0].Params.Description != "second" {
		t.Fatalf("only the completed batch may be archived: %#v", entries)
	}
}

func TestRegenerateUnknownItem(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, nil)
	if _, err := svc.Regenerate(context.Background(), "nope", domain.StyleStudio, "pose"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRegenerateUnchangedIsNoOp(t *testing.T) {
	var calls int
	var mu sync.Mutex
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)

	got, err := svc.Regenerate(context.Background(), items[0].ID, items[0].Style, items[0].Pose)
	if err != nil {
		t.Fatalf("Regenerate returned error: %v", err)
	}
	if got.PhotoState != domain.PhotoSuccess {
		t.Fatalf("state = %s, item must be untouched", got.PhotoState)
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("SynthesizeImage called %d times, want 1 (no regeneration)", calls)
	}
}

func TestRegenerateRejectedWhilePhotoLoading(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return domain.Media{}, ctx.Err()
			}
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items, err := svc.StartBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	defer close(release)

	_, err = svc.Regenerate(context.Background(), items[0].ID, domain.StyleFestive, "new pose")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestRegenerateOverridesAndResetsVideo(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			return "op-1", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			return VideoJobStatus{Done: true, VideoRef: "ref-1"}, nil
		},
		fetchVideo: func(ctx context.Context, ref string) (domain.Media, error) {
			return domain.Media{Data: []byte{2}, MIME: "video/mp4"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	if _, err := svc.GenerateVideo(context.Background(), id); err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}
	waitFor(t, "video success", func() bool {
		it, _ := svc.Item(id)
		return it.VideoState == domain.VideoSuccess
	})

	snapshot, err := svc.Regenerate(context.Background(), id, domain.StyleEditorial, "over the shoulder")
	if err != nil {
		t.Fatalf("Regenerate returned error: %v", err)
	}
	if snapshot.PhotoState != domain.PhotoLoading {
		t.Fatalf("snapshot photo state = %s, want loading", snapshot.PhotoState)
	}
	if snapshot.VideoState != domain.VideoIdle || snapshot.VideoResult != nil {
		t.Fatalf("video must reset to idle: %#v", snapshot)
	}
	if snapshot.Style != domain.StyleEditorial || snapshot.Pose != "over the shoulder" {
		t.Fatalf("override not applied: %#v", snapshot)
	}

	waitFor(t, "regeneration to finish", func() bool {
		it, _ := svc.Item(id)
		return it.PhotoState == domain.PhotoSuccess
	})
	it, _ := svc.Item(id)
	if it.VideoState != domain.VideoIdle {
		t.Fatalf("video state = %s after regeneration, want idle", it.VideoState)
	}
}

func TestRegenerateDiscardsInFlightVideo(t *testing.T) {
	releasePoll := make(chan struct{})
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			return "op-1", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			select {
			case <-releasePoll:
			case <-ctx.Done():
				return VideoJobStatus{}, ctx.Err()
			}
			return VideoJobStatus{Done: true, VideoRef: "ref-old"}, nil
		},
		fetchVideo: func(ctx context.Context, ref string) (domain.Media, error) {
			return domain.Media{Data: []byte("old photo video"), MIME: "video/mp4"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	if _, err := svc.GenerateVideo(context.Background(), id); err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}
	// Regenerate while the video job is mid-poll; the job belongs to the
	// photo being replaced.
	if _, err := svc.Regenerate(context.Background(), id, domain.StyleFestive, "mid-air toss"); err != nil {
		t.Fatalf("Regenerate returned error: %v", err)
	}
	close(releasePoll)

	waitFor(t, "regeneration to finish", func() bool {
		it, _ := svc.Item(id)
		return it.PhotoState == domain.PhotoSuccess
	})
	// Give the stale job a moment to finish, then check nothing attached.
	time.Sleep(30 * time.Millisecond)
	it, _ := svc.Item(id)
	if it.VideoState != domain.VideoIdle || it.VideoResult != nil {
		t.Fatalf("stale video leaked into regenerated item: %#v", it)
	}
}

func TestGenerateVideoSimultaneousRequestsSubmitOnce(t *testing.T) {
	var mu sync.Mutex
	var submits int
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			mu.Lock()
			submits++
			mu.Unlock()
			return "op-1", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			return VideoJobStatus{}, nil // never done
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	const callers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	var successes, conflicts int
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.GenerateVideo(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if successes != 1 || conflicts != callers-1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, callers-1)
	}
	if submits != 1 {
		t.Fatalf("SubmitVideoJob called %d times, want 1", submits)
	}
}

func TestRegenerateSimultaneousRequestsRunOnce(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var regens int
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			if strings.Contains(prompt, "retake") {
				mu.Lock()
				regens++
				mu.Unlock()
				select {
				case <-release:
				case <-ctx.Done():
					return domain.Media{}, ctx.Err()
				}
			}
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	const callers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	var successes, conflicts int
	for i := 0; i < callers; i++ {
		pose := fmt.Sprintf("retake %d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Regenerate(context.Background(), id, domain.StyleFestive, pose)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(release)

	mu.Lock()
	if successes != 1 || conflicts != callers-1 {
		mu.Unlock()
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, callers-1)
	}
	mu.Unlock()

	waitFor(t, "regeneration to finish", func() bool {
		it, _ := svc.Item(id)
		return it.PhotoState == domain.PhotoSuccess
	})
	mu.Lock()
	defer mu.Unlock()
	if regens != 1 {
		t.Fatalf("SynthesizeImage regenerated %d times, want 1", regens)
	}
}

func TestGenerateVideoRequiresSuccessfulPhoto(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{}, errors.New("model returned no image")
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)

	_, err := svc.GenerateVideo(context.Background(), items[0].ID)
	if !errors.Is(err, domain.ErrPhotoNotReady) {
		t.Fatalf("error = %v, want ErrPhotoNotReady", err)
	}
	if _, err := svc.GenerateVideo(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGenerateVideoPollsUntilDone(t *testing.T) {
	var mu sync.Mutex
	var submits, polls int
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			mu.Lock()
			submits++
			mu.Unlock()
			return "op-7", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			if handle != "op-7" {
				return VideoJobStatus{}, fmt.Errorf("unknown handle %q", handle)
			}
			mu.Lock()
			polls++
			n := polls
			mu.Unlock()
			if n < 3 {
				return VideoJobStatus{}, nil
			}
			return VideoJobStatus{Done: true, VideoRef: "files/video-7"}, nil
		},
		fetchVideo: func(ctx context.Context, ref string) (domain.Media, error) {
			if ref != "files/video-7" {
				return domain.Media{}, fmt.Errorf("unknown ref %q", ref)
			}
			return domain.Media{Data: []byte{4, 2}, MIME: "video/mp4"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	snapshot, err := svc.GenerateVideo(context.Background(), id)
	if err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}
	if snapshot.VideoState != domain.VideoLoading {
		t.Fatalf("snapshot video state = %s, want loading", snapshot.VideoState)
	}

	waitFor(t, "video success", func() bool {
		it, _ := svc.Item(id)
		return it.VideoState == domain.VideoSuccess
	})

	it, _ := svc.Item(id)
	if it.VideoResult == nil || it.VideoResult.MIME != "video/mp4" {
		t.Fatalf("video result missing: %#v", it)
	}
	mu.Lock()
	defer mu.Unlock()
	if submits != 1 {
		t.Fatalf("SubmitVideoJob called %d times, want 1", submits)
	}
	if polls != 3 {
		t.Fatalf("PollVideoJob called %d times, want 3", polls)
	}
}

func TestGenerateVideoRejectsConcurrentRequest(t *testing.T) {
	var mu sync.Mutex
	var submits int
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			mu.Lock()
			submits++
			mu.Unlock()
			return "op-1", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			return VideoJobStatus{}, nil // never done
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	if _, err := svc.GenerateVideo(context.Background(), id); err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}
	if _, err := svc.GenerateVideo(context.Background(), id); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if submits != 1 {
		t.Fatalf("SubmitVideoJob called %d times, want 1", submits)
	}
}

func TestGenerateVideoRecordsFailureReason(t *testing.T) {
	gw := &fakeGateway{
		planPoses: func(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
			return []string{"front view"}, nil
		},
		synthesizeImage: func(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
			return domain.Media{Data: []byte{1}, MIME: "image/png"}, nil
		},
		submitVideoJob: func(ctx context.Context, photo domain.Media, aspect domain.AspectRatio) (string, error) {
			return "op-1", nil
		},
		pollVideoJob: func(ctx context.Context, handle string) (VideoJobStatus, error) {
			return VideoJobStatus{Done: true, FailureReason: "quota exhausted"}, nil
		},
	}
	svc := newTestService(t, gw, nil)
	params := validParams()
	params.ItemCount = 1
	items := startSettledBatch(t, svc, params)
	id := items[0].ID

	if _, err := svc.GenerateVideo(context.Background(), id); err != nil {
		t.Fatalf("GenerateVideo returned error: %v", err)
	}
	waitFor(t, "video error", func() bool {
		it, _ := svc.Item(id)
		return it.VideoState == domain.VideoError
	})
	it, _ := svc.Item(id)
	if it.VideoError != "quota exhausted" {
		t.Fatalf("video error = %q, want %q", it.VideoError, "quota exhausted")
	}

	// A terminal video state admits a fresh request.
	if _, err := svc.GenerateVideo(context.Background(), id); err != nil {
		t.Fatalf("retry after failure returned error: %v", err)
	}
}

func TestDescribeValidatesAndTrims(t *testing.T) {
	gw := &fakeGateway{
		synthesizeDescription: func(ctx context.Context, product domain.Media) (string, error) {
			return "  A rugged canvas tote.  ", nil
		},
	}
	svc := newTestService(t, gw, nil)

	if _, err := svc.Describe(context.Background(), domain.Media{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	text, err := svc.Describe(context.Background(), domain.Media{Data: []byte{1}, MIME: "image/png"})
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if text != "A rugged canvas tote." {
		t.Fatalf("text = %q", text)
	}
}

func TestDescribeRejectsEmptyModelOutput(t *testing.T) {
	gw := &fakeGateway{
		synthesizeDescription: func(ctx context.Context, product domain.Media) (string, error) {
			return "   ", nil
		},
	}
	svc := newTestService(t, gw, nil)
	_, err := svc.Describe(context.Background(), domain.Media{Data: []byte{1}, MIME: "image/png"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

func TestDescribeClassifiesGatewayFailures(t *testing.T) {
	gw := &fakeGateway{
		synthesizeDescription: func(ctx context.Context, product domain.Media) (string, error) {
			return "", errors.New("gemini status 500: internal")
		},
	}
	svc := newTestService(t, gw, nil)
	_, err := svc.Describe(context.Background(), domain.Media{Data: []byte{1}, MIME: "image/png"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}

	// A credential rejection keeps its own kind so the caller can
	// surface re-authentication instead of a generic upstream failure.
	gw.synthesizeDescription = func(ctx context.Context, product domain.Media) (string, error) {
		return "", domain.ErrCredentialMissing
	}
	_, err = svc.Describe(context.Background(), domain.Media{Data: []byte{1}, MIME: "image/png"})
	if !errors.Is(err, domain.ErrCredentialMissing) || errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("error = %v, want ErrCredentialMissing", err)
	}
}
