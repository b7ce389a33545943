package instance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Table is the registry of live bridged instances.
// Rows are stored in a slot slice with a free list; a reused slot gets a new
// generation, so an identity never refers to two objects.
type Table struct {
	alias     map[Key]ID
	keys      map[ID][]Key
	slots     []slot
	free      []uint32
	observers []Observer
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

type slot struct {
	entry Entry
	gen   uint32
	valid bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		alias: make(map[Key]ID),
		keys:  make(map[ID][]Key),
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
	}
}

var (
	global     *Table
	globalOnce sync.Once
)

// Global returns the process-wide table. It is created on first use and
// lives for the rest of the process.
func Global() *Table {
	globalOnce.Do(func() {
		global = NewTable()
	})
	return global
}

// Register inserts a row and returns its identity. The row starts with one
// reference; e.ID and e.Refs are ignored.
func (t *Table) Register(e Entry) ID {
	t.mu.Lock()
	e.Held = append([]string(nil), e.Held...)
	e.Refs = 1

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		idx = uint32(len(t.slots) - 1)
	}
	s := &t.slots[idx]
	e.ID = makeID(idx, s.gen)
	s.entry = e
	s.valid = true
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventRegistered, Entry: e})
	return e.ID
}

// lookup returns the slot for id. Callers hold t.mu.
func (t *Table) lookup(id ID) *slot {
	if id == 0 {
		return nil
	}
	idx := id.slot()
	if int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.valid || s.gen != id.gen() {
		return nil
	}
	return s
}

// Get returns a copy of the row for id.
func (t *Table) Get(id ID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.lookup(id)
	if s == nil {
		return Entry{}, false
	}
	return s.entry, true
}

// Contains reports whether id is live.
func (t *Table) Contains(id ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookup(id) != nil
}

// Retain adds a reference to a live row and returns the new count.
func (t *Table) Retain(id ID) (int, bool) {
	t.mu.Lock()
	s := t.lookup(id)
	if s == nil {
		t.mu.Unlock()
		return 0, false
	}
	s.entry.Refs++
	e := s.entry
	t.mu.Unlock()

	t.notify(Event{Type: EventRetained, Entry: e})
	return e.Refs, true
}

// Release drops a reference. When the count reaches zero the row is
// unregistered before Release returns. It reports the remaining count.
func (t *Table) Release(id ID) (int, bool) {
	t.mu.Lock()
	s := t.lookup(id)
	if s == nil {
		t.mu.Unlock()
		return 0, false
	}
	s.entry.Refs--
	e := s.entry
	if e.Refs > 0 {
		t.mu.Unlock()
		t.notify(Event{Type: EventReleased, Entry: e})
		return e.Refs, true
	}
	t.remove(id, s)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Entry: e})
	t.notify(Event{Type: EventUnregistered, Entry: e})
	return 0, true
}

// Unregister removes a row regardless of its reference count.
func (t *Table) Unregister(id ID) (Entry, bool) {
	t.mu.Lock()
	s := t.lookup(id)
	if s == nil {
		t.mu.Unlock()
		return Entry{}, false
	}
	e := s.entry
	t.remove(id, s)
	t.mu.Unlock()

	t.notify(Event{Type: EventUnregistered, Entry: e})
	return e, true
}

// remove frees the slot and drops every alias of id. Callers hold t.mu.
func (t *Table) remove(id ID, s *slot) {
	for _, k := range t.keys[id] {
		if t.alias[k] == id {
			delete(t.alias, k)
		}
	}
	delete(t.keys, id)

	s.entry = Entry{}
	s.valid = false
	s.gen++
	t.free = append(t.free, id.slot())
	t.live--
}

// SetHeld replaces the list of native classes held by a row.
func (t *Table) SetHeld(id ID, held []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(id)
	if s == nil {
		return false
	}
	s.entry.Held = append([]string(nil), held...)
	return true
}

// Bind maps native storage to a live row so later lookups of the same
// storage find it. Binding a dead id fails.
func (t *Table) Bind(k Key, id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lookup(id) == nil {
		return false
	}
	if old, ok := t.alias[k]; ok && old != id {
		t.dropKey(old, k)
	}
	t.alias[k] = id
	t.keys[id] = append(t.keys[id], k)
	return true
}

// Unbind removes an alias.
func (t *Table) Unbind(k Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.alias[k]; ok {
		delete(t.alias, k)
		t.dropKey(id, k)
	}
}

func (t *Table) dropKey(id ID, k Key) {
	ks := t.keys[id]
	for i, x := range ks {
		if x == k {
			t.keys[id] = append(ks[:i], ks[i+1:]...)
			break
		}
	}
}

// Resolve returns the live row bound to native storage.
func (t *Table) Resolve(k Key) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.alias[k]
	if !ok {
		return Entry{}, false
	}
	s := t.lookup(id)
	if s == nil {
		return Entry{}, false
	}
	return s.entry, true
}

// Count returns the number of live rows.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Entries returns a snapshot of every live row sorted by identity.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, t.live)
	for i := range t.slots {
		if t.slots[i].valid {
			out = append(out, t.slots[i].entry)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dump renders every live row, one per line, sorted by identity:
//
//	#<id> <class> mode=<mode> refs=<n> site=<site> held=[<classes>]
func (t *Table) Dump() string {
	var b strings.Builder
	for _, e := range t.Entries() {
		site := e.Site
		if site == "" {
			site = "-"
		}
		fmt.Fprintf(&b, "#%s %s mode=%s refs=%d site=%s held=[%s]\n",
			e.ID, e.Class, e.Mode, e.Refs, site, strings.Join(e.Held, " "))
	}
	return b.String()
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnInstanceEvent(e)
	}
}
