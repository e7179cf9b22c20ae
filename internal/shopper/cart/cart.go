// Package cart is the shopper's local record of selected variants. It is a
// convenience cache: inputs are clamped rather than rejected, and the server
// remains the authority at reconciliation and session creation.
package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// Line is one variant selection. Display fields are a snapshot taken at add
// time and may go stale.
type Line struct {
	VariantID   string `json:"variantId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	VariantName string `json:"variantName"`
	ImageURL    string `json:"imageUrl,omitempty"`
	PriceCents  int    `json:"priceCents"`
	Stock       int    `json:"stock"`
	Quantity    int    `json:"quantity"`
}

// Variant carries the purchasable fields read from the catalog.
type Variant struct {
	ID         string
	Name       string
	PriceCents int
	Stock      int
}

// Product carries the display fields read from the catalog.
type Product struct {
	ID       string
	Name     string
	ImageURL string
}

// Stock is the server truth for one variant.
type Stock struct {
	Stock      int
	PriceCents int
}

// Store owns the lines of one cart owner and persists them on every change.
type Store struct {
	mu        sync.RWMutex
	kv        storage.Store
	logg      *logger.Logger
	owner     string
	lines     []Line
	listeners []func()
}

// New loads the persisted cart of owner. A missing or unreadable document
// yields an empty cart.
func New(ctx context.Context, kv storage.Store, owner string, logg *logger.Logger) (*Store, error) {
	if kv == nil {
		return nil, errors.New("cart storage required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	s := &Store{kv: kv, logg: logg, owner: normalizeOwner(owner)}
	s.lines = s.load(ctx, s.owner)
	return s, nil
}

// Subscribe registers fn to run after every shopper-driven change to the
// line set. Snapshot refreshes do not notify.
func (s *Store) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Add appends variant with quantity 1 or increments its line. A variant with
// no stock, or a line already at its stock ceiling, is left untouched.
func (s *Store) Add(ctx context.Context, variant Variant, product Product) {
	if variant.Stock <= 0 || variant.ID == "" {
		return
	}
	s.mu.Lock()
	idx := s.indexOf(variant.ID)
	switch {
	case idx >= 0 && s.lines[idx].Quantity+1 > variant.Stock:
		s.mu.Unlock()
		return
	case idx >= 0:
		s.lines[idx].Quantity++
		s.lines[idx].Stock = variant.Stock
	default:
		s.lines = append(s.lines, Line{
			VariantID:   variant.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantName: variant.Name,
			ImageURL:    product.ImageURL,
			PriceCents:  variant.PriceCents,
			Stock:       variant.Stock,
			Quantity:    1,
		})
	}
	s.commitLocked(ctx)
}

// Remove deletes the line for variantID if present.
func (s *Store) Remove(ctx context.Context, variantID string) {
	s.mu.Lock()
	idx := s.indexOf(variantID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.commitLocked(ctx)
}

// UpdateQuantity sets the quantity clamped to [1, stock] and returns the
// quantity actually stored (0 when the line is absent). A line whose known
// stock is zero is left untouched until it is removed or restocked.
func (s *Store) UpdateQuantity(ctx context.Context, variantID string, quantity int) int {
	s.mu.Lock()
	idx := s.indexOf(variantID)
	if idx < 0 {
		s.mu.Unlock()
		return 0
	}
	if s.lines[idx].Stock <= 0 {
		q := s.lines[idx].Quantity
		s.mu.Unlock()
		return q
	}
	q := min(quantity, s.lines[idx].Stock)
	q = max(q, 1)
	s.lines[idx].Quantity = q
	s.commitLocked(ctx)
	return q
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.commitLocked(ctx)
}

// Merge folds incoming lines into the cart. Quantities of lines already
// present are summed and capped at the known stock; new lines are appended.
func (s *Store) Merge(ctx context.Context, incoming []Line) {
	if len(incoming) == 0 {
		return
	}
	s.mu.Lock()
	for _, line := range incoming {
		if line.VariantID == "" || line.Quantity <= 0 {
			continue
		}
		if idx := s.indexOf(line.VariantID); idx >= 0 {
			existing := &s.lines[idx]
			if existing.Stock <= 0 {
				continue
			}
			existing.Quantity = max(min(existing.Quantity+line.Quantity, existing.Stock), 1)
			continue
		}
		if line.Stock <= 0 {
			continue
		}
		line.Quantity = min(line.Quantity, line.Stock)
		s.lines = append(s.lines, line)
	}
	s.commitLocked(ctx)
}

// ApplySnapshot refreshes stock and price of known lines. Quantities are
// never touched and variants missing from snapshot are left as they are.
func (s *Store) ApplySnapshot(ctx context.Context, snapshot map[string]Stock) {
	if len(snapshot) == 0 {
		return
	}
	s.mu.Lock()
	changed := false
	for i := range s.lines {
		truth, ok := snapshot[s.lines[i].VariantID]
		if !ok {
			continue
		}
		if s.lines[i].Stock != truth.Stock || s.lines[i].PriceCents != truth.PriceCents {
			s.lines[i].Stock = truth.Stock
			s.lines[i].PriceCents = truth.PriceCents
			changed = true
		}
	}
	if changed {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
}

// SwitchOwner persists the current cart and loads the cart of owner.
func (s *Store) SwitchOwner(ctx context.Context, owner string) {
	owner = normalizeOwner(owner)
	s.mu.Lock()
	if owner == s.owner {
		s.mu.Unlock()
		return
	}
	s.persistLocked(ctx)
	s.owner = owner
	s.lines = s.load(ctx, owner)
	s.commitLocked(ctx)
}

// Persist writes the current lines again. Used before a navigation detour.
func (s *Store) Persist(ctx context.Context) {
	s.mu.Lock()
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// Discard deletes the stored cart of owner without touching the live cart.
func (s *Store) Discard(ctx context.Context, owner string) {
	owner = normalizeOwner(owner)
	s.mu.RLock()
	current := s.owner
	s.mu.RUnlock()
	if owner == current {
		return
	}
	if err := s.kv.Delete(ctx, storage.CartKey(owner)); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "owner", owner), "cart.discard.failed", err)
	}
}

// LoadOwner reads the stored cart of another owner, e.g. the guest cart
// before it is merged into a user cart.
func (s *Store) LoadOwner(ctx context.Context, owner string) []Line {
	return s.load(ctx, normalizeOwner(owner))
}

func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Lines returns a copy of the current lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// TotalCents is the sum of price times quantity over the current lines.
func (s *Store) TotalCents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Subtotal(s.lines)
}

// Subtotal sums price times quantity over lines.
func Subtotal(lines []Line) int {
	total := 0
	for _, line := range lines {
		total += line.PriceCents * line.Quantity
	}
	return total
}

func (s *Store) indexOf(variantID string) int {
	for i := range s.lines {
		if s.lines[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// commitLocked persists, releases the lock and notifies listeners.
func (s *Store) commitLocked(ctx context.Context) {
	s.persistLocked(ctx)
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	lines := s.lines
	if lines == nil {
		lines = []Line{}
	}
	if err := storage.SetJSON(ctx, s.kv, storage.CartKey(s.owner), lines, 0); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "owner", s.owner), "cart.persist.failed", err)
	}
}

func (s *Store) load(ctx context.Context, owner string) []Line {
	var lines []Line
	err := storage.GetJSON(ctx, s.kv, storage.CartKey(owner), &lines)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "owner", owner), "cart.load.failed", err)
		return nil
	}
	return dedupe(lines)
}

// dedupe keeps the first line per variant so a hand-edited document cannot
// break the one-line-per-variant rule.
func dedupe(lines []Line) []Line {
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0]
	for _, line := range lines {
		if line.VariantID == "" || line.Quantity <= 0 {
			continue
		}
		if _, ok := seen[line.VariantID]; ok {
			continue
		}
		seen[line.VariantID] = struct{}{}
		out = append(out, line)
	}
	return out
}

func normalizeOwner(owner string) string {
	if owner == "" {
		return storage.GuestOwner
	}
	return owner
}
