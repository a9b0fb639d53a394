package server

import (
	"context"
	"sync"

	"mdpviz/models"
	"mdpviz/reinforcement"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
)

// Update is the websocket payload: a frame and the stats as of that frame.
type Update struct {
	Frame models.Frame                `json:"frame"`
	Stats reinforcement.StatsSnapshot `json:"stats"`
}

// hub fans the single frame stream out to every websocket client. Each subscriber holds at
// most one pending update and a slow one only ever misses intermediate updates.
type hub struct {
	frames <-chan models.Frame
	stats  StatsReader

	mu     sync.Mutex
	last   *Update
	subs   map[string]chan Update
	closed bool
}

func newHub(frames <-chan models.Frame, stats StatsReader) *hub {
	return &hub{
		frames: frames,
		stats:  stats,
		subs:   map[string]chan Update{},
	}
}

// run pumps frames until ctx is done or the frame source closes, then closes all subscribers.
func (h *hub) run(ctx context.Context) {
	updates := channerics.Convert(ctx.Done(), h.frames, func(frame models.Frame) Update {
		return Update{Frame: frame, Stats: h.stats.Snapshot()}
	})
	for update := range channerics.OrDone(ctx.Done(), updates) {
		h.broadcast(update)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		close(sub)
		delete(h.subs, id)
	}
}

func (h *hub) broadcast(update Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &update
	for _, sub := range h.subs {
		offer(sub, update)
	}
}

// offer replaces any unread update with the new one.
func offer(sub chan Update, update Update) {
	select {
	case sub <- update:
		return
	default:
	}
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- update:
	default:
	}
}

func (h *hub) latest() (Update, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Update{}, false
	}
	return *h.last, true
}

// subscribe returns a channel primed with the latest update, if any. The channel is closed by
// unsubscribe or when the hub stops.
func (h *hub) subscribe() (<-chan Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := make(chan Update, 1)
	if h.closed {
		close(sub)
		return sub, func() {}
	}
	if h.last != nil {
		sub <- *h.last
	}
	id := uuid.NewString()
	h.subs[id] = sub

	return sub, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
