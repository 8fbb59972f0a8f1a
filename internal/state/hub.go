// Package state serves per-user GlobalFinancialState documents to live
// subscribers and implements the client-side reader over them.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"optify/internal/core"
	applog "optify/internal/log"
	"optify/internal/storage"
)

// Update is one delivery to a subscriber. Exactly one of State, Missing or Err is meaningful.
type Update struct {
	State   *core.GlobalFinancialState
	Missing bool
	Err     error
}

type Listener func(Update)

// Hub fans out state documents to subscribers keyed by user id.
type Hub struct {
	store storage.StateStore

	mu     sync.Mutex
	subs   map[string]map[uint64]Listener
	seen   map[string]int64
	nextID uint64
}

func NewHub(store storage.StateStore) *Hub {
	return &Hub{
		store: store,
		subs:  make(map[string]map[uint64]Listener),
		seen:  make(map[string]int64),
	}
}

// Subscribe registers fn for userID and immediately delivers the current
// document, or a missing notification. The returned func unsubscribes and is
// safe to call more than once.
func (h *Hub) Subscribe(ctx context.Context, userID string, fn Listener) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]Listener)
	}
	h.subs[userID][id] = fn
	h.mu.Unlock()

	fn(h.load(ctx, userID))

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
				delete(h.seen, userID)
			}
		})
	}
}

// Subscribers returns the number of live listeners for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Notify re-reads userID's document and delivers it to every listener.
func (h *Hub) Notify(ctx context.Context, userID string) {
	listeners := h.listeners(userID)
	if len(listeners) == 0 {
		return
	}

	upd := h.load(ctx, userID)
	for _, fn := range listeners {
		fn(upd)
	}
}

// Watch polls the store for version changes written by other processes
// and notifies the affected subscribers. It returns when ctx is done.
func (h *Hub) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.poll(ctx)
		}
	}
}

func (h *Hub) poll(ctx context.Context) {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentState)
	versions, err := h.store.StateVersions(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to poll state versions", applog.FieldError, err.Error())
		return
	}

	var changed []string
	h.mu.Lock()
	for userID := range h.subs {
		v, ok := versions[userID]
		if ok && v > h.seen[userID] {
			changed = append(changed, userID)
		}
	}
	h.mu.Unlock()

	for _, userID := range changed {
		logger.DebugContext(ctx, "State document changed",
			applog.FieldUserID, userID,
			applog.FieldVersion, versions[userID])
		h.Notify(ctx, userID)
	}
}

func (h *Hub) listeners(userID string) []Listener {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Listener, 0, len(h.subs[userID]))
	for _, fn := range h.subs[userID] {
		out = append(out, fn)
	}
	return out
}

func (h *Hub) load(ctx context.Context, userID string) Update {
	st, err := h.store.GetState(ctx, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return Update{Missing: true}
	case err != nil:
		return Update{Err: err}
	}

	h.mu.Lock()
	if _, live := h.subs[userID]; live && st.Version > h.seen[userID] {
		h.seen[userID] = st.Version
	}
	h.mu.Unlock()
	return Update{State: st}
}
