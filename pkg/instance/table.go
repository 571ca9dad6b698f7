package instance

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// ErrCapacity is returned by Activate when the table is full.
var ErrCapacity = errors.New("instance capacity exhausted")

// Table is the set of active instances of one ephemeral signal.
// It is safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	capacity int
	active   map[signal.InstanceID]time.Time
}

// NewTable creates a table admitting at most capacity active instances.
// A capacity below one is treated as one.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	return &Table{
		capacity: capacity,
		active:   make(map[signal.InstanceID]time.Time),
	}
}

// Activate marks id active as of at. Activating an already active id is a
// no-op that returns false. If the table is full and id is not active,
// ErrCapacity is returned.
func (t *Table) Activate(id signal.InstanceID, at time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		return false, nil
	}
	if len(t.active) >= t.capacity {
		return false, ErrCapacity
	}
	t.active[id] = at
	return true, nil
}

// Release deactivates id and reports whether it was active.
func (t *Table) Release(id signal.InstanceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}

// IsActive reports whether id is active.
func (t *Table) IsActive(id signal.InstanceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[id]
	return ok
}

// Len returns the number of active instances.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Capacity returns the maximum number of active instances.
func (t *Table) Capacity() int {
	return t.capacity
}

// Entries returns a snapshot of the active set ordered by instance id.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.active))
	for id, at := range t.active {
		entries = append(entries, Entry{ID: id, Activated: at})
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Clear deactivates every instance.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[signal.InstanceID]time.Time)
}
