package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"optify/internal/core"
)

type Status int

const (
	StatusUnsubscribed Status = iota
	StatusSubscribing
	StatusPopulated
	StatusMissing
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnsubscribed:
		return "unsubscribed"
	case StatusSubscribing:
		return "subscribing"
	case StatusPopulated:
		return "populated"
	case StatusMissing:
		return "missing"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusUnsubscribed; st <= StatusError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

var ErrNoUser = errors.New("no user selected")

// RecalculateError wraps a failed recompute request.
type RecalculateError struct {
	UserID string
	Err    error
}

func (e *RecalculateError) Error() string {
	return fmt.Sprintf("recalculate financial state for %s: %v", e.UserID, e.Err)
}

func (e *RecalculateError) Unwrap() error { return e.Err }

// Source delivers live document updates for a user.
type Source interface {
	Subscribe(ctx context.Context, userID string, fn Listener) func()
}

// Recalculator asks the backend to rebuild a user's document. The new
// document arrives through the Source, not the return value.
type Recalculator interface {
	Trigger(ctx context.Context, userID, reason string) error
}

// View is what a consumer of the reader renders.
type View struct {
	UserID    string                     `json:"user_id,omitempty"`
	Status    Status                     `json:"status"`
	Data      *core.GlobalFinancialState `json:"data"`
	IsLoading bool                       `json:"is_loading"`
	Err       error                      `json:"-"`
}

// Reader tracks one user's financial state. It is safe for concurrent use.
type Reader struct {
	src    Source
	recalc Recalculator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	gen         uint64
	view        View
	unsubscribe func()
	onChange    func(View)
	closed      bool
}

func NewReader(src Source, recalc Recalculator) *Reader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reader{
		src:    src,
		recalc: recalc,
		ctx:    ctx,
		cancel: cancel,
		view:   View{Status: StatusUnsubscribed},
	}
}

// OnChange registers fn to receive every new view. Only one callback is kept.
func (r *Reader) OnChange(fn func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Reader) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// SetUser switches the reader to userID, tearing down any previous
// subscription. An empty id leaves the reader unsubscribed.
func (r *Reader) SetUser(userID string) {
	r.mu.Lock()
	if r.closed || userID == r.view.UserID {
		r.mu.Unlock()
		return
	}

	prev := r.unsubscribe
	r.unsubscribe = nil
	r.gen++
	gen := r.gen

	if userID == "" {
		r.view = View{Status: StatusUnsubscribed}
	} else {
		r.view = View{UserID: userID, Status: StatusSubscribing, IsLoading: true}
	}
	notify := r.changed()
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
	notify()

	if userID == "" {
		return
	}

	unsub := r.src.Subscribe(r.ctx, userID, func(u Update) { r.handle(gen, userID, u) })

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		unsub()
		return
	}
	r.unsubscribe = unsub
	r.mu.Unlock()
}

// Refetch requests a recompute regardless of the current state.
func (r *Reader) Refetch() error {
	r.mu.Lock()
	userID := r.view.UserID
	gen := r.gen
	if r.closed || userID == "" {
		r.mu.Unlock()
		return ErrNoUser
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.trigger(gen, userID, "refetch")
	return nil
}

// Close unsubscribes and waits for in-flight recompute requests.
func (r *Reader) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.view = View{Status: StatusUnsubscribed}
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.cancel()
	r.wg.Wait()
}

func (r *Reader) handle(gen uint64, userID string, u Update) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}

	switch {
	case u.Err != nil:
		r.view.Status = StatusError
		r.view.Err = u.Err
		r.view.IsLoading = false
	case u.Missing:
		// A snapshot is never deleted, so a late miss from the initial
		// read must not replace one that has already arrived.
		if r.view.Data != nil {
			r.mu.Unlock()
			return
		}
		r.view.Status = StatusMissing
		r.view.Data = nil
		r.view.Err = nil
		r.view.IsLoading = true
	case u.State != nil:
		if r.view.Data != nil && !u.State.NewerThan(r.view.Data) {
			r.mu.Unlock()
			return
		}
		r.view.Status = StatusPopulated
		r.view.Data = u.State
		r.view.Err = nil
		r.view.IsLoading = false
	default:
		r.mu.Unlock()
		return
	}
	if u.Missing {
		r.wg.Add(1)
	}
	notify := r.changed()
	r.mu.Unlock()

	notify()
	if u.Missing {
		go r.trigger(gen, userID, "missing")
	}
}

// trigger runs one recompute request; the caller has already done wg.Add.
func (r *Reader) trigger(gen uint64, userID, reason string) {
	defer r.wg.Done()

	err := r.recalc.Trigger(r.ctx, userID, reason)
	if err == nil || r.ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.view.Status = StatusError
	r.view.Err = &RecalculateError{UserID: userID, Err: err}
	r.view.IsLoading = false
	notify := r.changed()
	r.mu.Unlock()
	notify()
}

// changed snapshots the view for the callback; call with mu held and run the
// result after releasing it.
func (r *Reader) changed() func() {
	fn := r.onChange
	view := r.view
	if fn == nil {
		return func() {}
	}
	return func() { fn(view) }
}
