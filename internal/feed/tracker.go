package feed

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
)

// Tracker is a client-side view of a user's orders. Reset loads a pulled
// list; Apply folds in pushed changes and ignores duplicates and stale ones.
type Tracker struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*model.OrderView
}

func NewTracker() *Tracker {
	return &Tracker{orders: make(map[uuid.UUID]*model.OrderView)}
}

func (t *Tracker) Reset(orders []*model.OrderView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.orders = make(map[uuid.UUID]*model.OrderView, len(orders))
	for _, o := range orders {
		cp := *o
		t.orders[o.ID] = &cp
	}
}

// Apply reports whether the change moved a known order forward. Pushes may
// arrive out of order or be lost, so any later lifecycle stage is taken even
// when it skips one. A false return for an unknown order means the caller
// should pull again.
func (t *Tracker) Apply(change model.OrderChange) (applied bool, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[change.OrderID]
	if !ok {
		return false, false
	}
	if change.Status.Rank() <= o.Status.Rank() {
		return false, true
	}

	o.Status = change.Status
	if change.APIOrderID != nil {
		o.APIOrderID = change.APIOrderID
	}
	if change.UpdatedAt.After(o.UpdatedAt) {
		o.UpdatedAt = change.UpdatedAt
	}
	return true, true
}

func (t *Tracker) Get(id uuid.UUID) (*model.OrderView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	o, ok := t.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// Snapshot returns the tracked orders newest first.
func (t *Tracker) Snapshot() []*model.OrderView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.OrderView, 0, len(t.orders))
	for _, o := range t.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
