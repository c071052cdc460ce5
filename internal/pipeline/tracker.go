package pipeline

import (
	"sync"

	"studio/internal/domain"
)

// Event is one observed item state transition. Resync marks a gap: the
// subscriber's channel overflowed and transitions were dropped, so the
// observer should re-read the full item snapshot.
type Event struct {
	Item   domain.Item
	Resync bool
}

const subscriberBuffer = 64

type subscriber struct {
	ch     chan Event
	lagged bool
}

// Tracker owns the canonical lifecycle state of the current batch's
// items. All transitions go through it; every mutation broadcasts the
// item's new snapshot to subscribers. Mutating an unknown id is a no-op.
//
// Video jobs and regenerations are long-running and finish out of band,
// so their begin/complete pairs carry an episode token: Begin* hands one
// out, a later regeneration invalidates it, and completion writes with a
// stale token are discarded. That keeps a video finished after its photo
// was regenerated from attaching to the new photo.
type Tracker struct {
	mu       sync.Mutex
	order    []string
	items    map[string]*domain.Item
	episodes map[string]int
	subs     map[int]*subscriber
	nextSub  int
}

func NewTracker() *Tracker {
	return &Tracker{
		items:    make(map[string]*domain.Item),
		episodes: make(map[string]int),
		subs:     make(map[int]*subscriber),
	}
}

// Reset replaces the tracked set with a new batch's items, forgetting
// the previous batch entirely.
func (t *Tracker) Reset(items []domain.Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = make([]string, 0, len(items))
	t.items = make(map[string]*domain.Item, len(items))
	t.episodes = make(map[string]int, len(items))
	for i := range items {
		it := items[i].Clone()
		t.order = append(t.order, it.ID)
		t.items[it.ID] = &it
	}
}

// Get returns a snapshot of one item.
func (t *Tracker) Get(id string) (domain.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return domain.Item{}, false
	}
	return it.Clone(), true
}

// List returns snapshots of all items in planning order.
func (t *Tracker) List() []domain.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Item, 0, len(t.order))
	for _, id := range t.order {
		if it, ok := t.items[id]; ok {
			out = append(out, it.Clone())
		}
	}
	return out
}

func (t *Tracker) SetPhotoSuccess(id string, photo domain.Media) {
	t.mutate(id, func(it *domain.Item) {
		p := photo
		it.PhotoState = domain.PhotoSuccess
		it.PhotoResult = &p
		it.PhotoError = ""
	})
}

func (t *Tracker) SetPhotoError(id, reason string) {
	t.mutate(id, func(it *domain.Item) {
		it.PhotoState = domain.PhotoError
		it.PhotoResult = nil
		it.PhotoError = reason
	})
}

// BeginVideo atomically checks the video preconditions and enters the
// loading state: the photo must be generated and no video job may be in
// flight. The returned episode token must accompany the job's completion
// writes; a regeneration in between invalidates it.
func (t *Tracker) BeginVideo(id string) (domain.Item, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return domain.Item{}, 0, domain.ErrNotFound
	}
	if it.PhotoState != domain.PhotoSuccess || it.PhotoResult == nil {
		return domain.Item{}, 0, domain.ErrPhotoNotReady
	}
	if it.VideoState == domain.VideoLoading {
		return domain.Item{}, 0, domain.ErrConflict
	}
	t.episodes[id]++
	it.VideoState = domain.VideoLoading
	it.VideoResult = nil
	it.VideoError = ""
	snapshot := it.Clone()
	t.broadcastLocked(snapshot)
	return snapshot, t.episodes[id], nil
}

// BeginRegeneration atomically applies a style and pose override and
// puts the item's photo back to loading. When the override matches the
// current values there is nothing to do and it returns started=false
// with the unchanged snapshot. A call while the photo is already loading
// is rejected. The video sub-state returns to idle and the current video
// episode is invalidated: a video derived from the old photo must not
// attach to the new one.
func (t *Tracker) BeginRegeneration(id string, style domain.Style, pose string) (domain.Item, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return domain.Item{}, false, domain.ErrNotFound
	}
	if it.Style == style && it.Pose == pose {
		return it.Clone(), false, nil
	}
	if it.PhotoState == domain.PhotoLoading {
		return domain.Item{}, false, domain.ErrConflict
	}
	t.episodes[id]++
	it.Style = style
	it.Pose = pose
	it.PhotoState = domain.PhotoLoading
	it.PhotoResult = nil
	it.PhotoError = ""
	it.VideoState = domain.VideoIdle
	it.VideoResult = nil
	it.VideoError = ""
	snapshot := it.Clone()
	t.broadcastLocked(snapshot)
	return snapshot, true, nil
}

// VideoEpisodeActive reports whether the token still identifies the
// item's current video job. Poll loops use it to stop early once their
// result can no longer be recorded.
func (t *Tracker) VideoEpisodeActive(id string, episode int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.items[id]
	return ok && t.episodes[id] == episode
}

func (t *Tracker) SetVideoSuccess(id string, episode int, video domain.Media) {
	t.mutateEpisode(id, episode, func(it *domain.Item) {
		v := video
		it.VideoState = domain.VideoSuccess
		it.VideoResult = &v
		it.VideoError = ""
	})
}

func (t *Tracker) SetVideoError(id string, episode int, reason string) {
	t.mutateEpisode(id, episode, func(it *domain.Item) {
		it.VideoState = domain.VideoError
		it.VideoResult = nil
		it.VideoError = reason
	})
}

// Subscribe registers an observer for item transitions. The returned
// cancel is idempotent and closes the channel.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	t.subs[id] = sub

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

func (t *Tracker) mutate(id string, fn func(*domain.Item)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return
	}
	fn(it)
	t.broadcastLocked(it.Clone())
}

// mutateEpisode applies fn only while the token is still current, so a
// job that outlived its item's regeneration writes nothing.
func (t *Tracker) mutateEpisode(id string, episode int, fn func(*domain.Item)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok || t.episodes[id] != episode {
		return
	}
	fn(it)
	t.broadcastLocked(it.Clone())
}

// broadcastLocked fans the snapshot out without blocking the tracker on
// slow observers. A subscriber whose buffer is full is marked lagged and
// receives a single Resync event once it drains, instead of a silent gap.
func (t *Tracker) broadcastLocked(snapshot domain.Item) {
	for _, sub := range t.subs {
		if sub.lagged {
			select {
			case sub.ch <- Event{Resync: true}:
				sub.lagged = false
			default:
			}
			continue
		}
		select {
		case sub.ch <- Event{Item: snapshot}:
		default:
			sub.lagged = true
		}
	}
}
