package broadcast

import (
	"reflect"
	"sync"

	"fieldlog/pkg/domain"
)

// Source is the slice of the record store a view reconciles against.
type Source interface {
	// Reconcile re-reads the durable snapshot into the store's cache and
	// reports whether anything changed.
	Reconcile() (bool, error)
	// List returns the store's records in insertion order.
	List() []domain.Observation
}

// View is one context's in-memory copy of the observation collection plus
// its UI selection. Durable storage is the single source of truth: on any
// bus signal the view re-reads and, when the authoritative copy differs,
// replaces its own wholesale. A view never writes back during
// reconciliation; only explicit record-store mutations write.
type View struct {
	mu         sync.Mutex
	source     Source
	records    []domain.Observation
	selectedID string
	onChange   func([]domain.Observation)
	cancels    []func()
}

// NewView subscribes a view to both bus signals. onChange fires only when
// reconciliation actually replaced the in-memory copy; it may be nil.
func NewView(source Source, bus *Bus, onChange func([]domain.Observation)) *View {
	v := &View{source: source, onChange: onChange, records: source.List()}
	c1 := bus.SubscribeNotices(func(n domain.StorageNotice) {
		if n.Key == domain.StorageKeyObservations {
			v.refresh()
		}
	})
	c2 := bus.SubscribeChanges(func(domain.ChangeEvent) { v.refresh() })
	v.cancels = []func(){c1, c2}
	return v
}

// Close unsubscribes the view from the bus.
func (v *View) Close() {
	for _, cancel := range v.cancels {
		cancel()
	}
}

// Records returns the view's current in-memory copy.
func (v *View) Records() []domain.Observation {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Observation, len(v.records))
	for i, o := range v.records {
		out[i] = o.Clone()
	}
	return out
}

// Select marks a record as the view's current selection, mirroring an open
// detail panel.
func (v *View) Select(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedID = id
}

// SelectedID returns the current selection, empty when nothing is selected
// or the selected record was removed by another context.
func (v *View) SelectedID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectedID
}

// refresh runs one reconciliation pass. Re-running it with no new
// mutations is a no-op: the durable copy equals the in-memory copy, so
// nothing is replaced and no change callback fires.
func (v *View) refresh() {
	changed, err := v.source.Reconcile()
	if err != nil {
		// Storage read failures leave the current copy in place; the next
		// signal retries.
		return
	}
	fresh := v.source.List()

	v.mu.Lock()
	if !changed && reflect.DeepEqual(fresh, v.records) {
		v.mu.Unlock()
		return
	}
	v.records = fresh
	if v.selectedID != "" && !containsID(fresh, v.selectedID) {
		v.selectedID = ""
	}
	cb := v.onChange
	v.mu.Unlock()

	if cb != nil {
		cb(fresh)
	}
}

func containsID(records []domain.Observation, id string) bool {
	for _, o := range records {
		if o.ID == id {
			return true
		}
	}
	return false
}
