package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/cart"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// ErrSuperseded is returned when a newer request replaced the one whose
// result was about to be applied.
var ErrSuperseded = errors.New("reconciliation superseded by a newer cart change")

// View is what the shopper sees: current lines plus their annotations.
type View struct {
	Lines     []cart.Line
	Errors    map[string]LineError
	Token     uint64
	CheckedAt time.Time
	// Stale is set when the last attempt failed and Errors may be outdated.
	Stale bool
}

// Checked reports whether any reconciliation has been applied yet.
func (v View) Checked() bool {
	return !v.CheckedAt.IsZero()
}

// Blocking returns the annotations that forbid payment.
func (v View) Blocking() map[string]LineError {
	out := map[string]LineError{}
	for id, e := range v.Errors {
		if e.Blocking() {
			out[id] = e
		}
	}
	return out
}

// scheduleFunc runs fn after d and returns a stop function.
type scheduleFunc func(d time.Duration, fn func()) func() bool

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Watcher re-runs reconciliation after cart edits. Edits inside the debounce
// window collapse into one request and every request carries a token; a
// result whose token is no longer the latest is dropped.
type Watcher struct {
	rec      *Reconciler
	cart     *cart.Store
	logg     *logger.Logger
	debounce time.Duration
	now      func() time.Time
	schedule scheduleFunc

	mu      sync.Mutex
	baseCtx context.Context
	token   uint64
	stop    func() bool
	view    View
}

func NewWatcher(rec *Reconciler, store *cart.Store, debounce time.Duration, logg *logger.Logger) (*Watcher, error) {
	if rec == nil {
		return nil, errors.New("reconciler required")
	}
	if store == nil {
		return nil, errors.New("cart required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if debounce < 0 {
		debounce = 0
	}
	return &Watcher{
		rec:      rec,
		cart:     store,
		logg:     logg,
		debounce: debounce,
		now:      time.Now,
		schedule: afterFunc,
		baseCtx:  context.Background(),
		view:     View{Lines: store.Lines(), Errors: map[string]LineError{}},
	}, nil
}

// Start subscribes to cart edits and schedules a first pass.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.baseCtx = ctx
	w.mu.Unlock()
	w.cart.Subscribe(w.Trigger)
	w.Trigger()
}

// Stop cancels a pending pass.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
}

// Trigger schedules a pass after the debounce window, replacing any pass
// that has not started yet.
func (w *Watcher) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	token := w.nextTokenLocked()
	ctx := w.baseCtx
	w.stop = w.schedule(w.debounce, func() {
		_, _ = w.reconcile(ctx, token)
	})
}

// Revalidate runs a pass now and returns its view. Unlike background
// passes, a failure is returned so checkout can refuse to proceed.
func (w *Watcher) Revalidate(ctx context.Context) (View, error) {
	w.mu.Lock()
	token := w.nextTokenLocked()
	w.mu.Unlock()
	return w.reconcile(ctx, token)
}

// View returns the last applied view with the live cart lines.
func (w *Watcher) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	view := w.view
	view.Lines = w.cart.Lines()
	view.Errors = make(map[string]LineError, len(w.view.Errors))
	for id, e := range w.view.Errors {
		view.Errors[id] = e
	}
	return view
}

func (w *Watcher) nextTokenLocked() uint64 {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	w.token++
	return w.token
}

func (w *Watcher) reconcile(ctx context.Context, token uint64) (View, error) {
	result, err := w.rec.Reconcile(ctx, w.cart.Lines())

	w.mu.Lock()
	defer w.mu.Unlock()
	logCtx := w.logg.WithField(ctx, "reconcile_token", token)
	if token != w.token {
		w.logg.Debug(logCtx, "cart.reconcile.superseded")
		return w.view, ErrSuperseded
	}
	if err != nil {
		w.view.Stale = true
		w.logg.Error(logCtx, "cart.reconcile.failed", err)
		return w.view, err
	}

	w.cart.ApplySnapshot(ctx, result.Snapshot())
	w.view = View{
		Lines:     w.cart.Lines(),
		Errors:    result.Errors,
		Token:     token,
		CheckedAt: w.now(),
	}
	return w.view, nil
}
