package descriptor

import (
	"reflect"
	"sort"

	"github.com/wippyai/objbridge/errors"
)

// Origin tells whether a class was registered by native code or defined on
// the host side.
type Origin uint8

const (
	OriginNative Origin = iota
	OriginHost
)

func (o Origin) String() string {
	if o == OriginHost {
		return "host"
	}
	return "native"
}

// Class is the descriptor of one bridgeable class.
// Classes are created by Registry.Register and never change afterwards,
// except that host classes may receive further overrides.
type Class struct {
	reg       *Registry
	goType    reflect.Type
	ctor      Constructor
	copier    Copier
	init      InitFunc
	slots     map[string]*Slot
	overrides map[string]HostFunc
	table     map[string]*Target
	id        string
	doc       string
	slotOrder []string
	parents   []int
	mro       []int
	mroPtrs   []*Class
	abstract  []errors.AbstractSlot
	index     int
	origin    Origin
}

// ID returns the class id.
func (c *Class) ID() string { return c.id }

// Name returns the class id. It lets linearization errors print classes.
func (c *Class) Name() string { return c.id }

// Index returns the arena index of the class in its registry.
func (c *Class) Index() int { return c.index }

// Origin returns whether the class is native or host-defined.
func (c *Class) Origin() Origin { return c.origin }

// Doc returns the class documentation string.
func (c *Class) Doc() string { return c.doc }

// GoType returns the native payload type, or nil.
func (c *Class) GoType() reflect.Type { return c.goType }

// Constructor returns the native constructor, or nil.
func (c *Class) Constructor() Constructor { return c.ctor }

// Copier returns the native copier, or nil.
func (c *Class) Copier() Copier { return c.copier }

// Copyable reports whether values of the class can be copied.
func (c *Class) Copyable() bool { return c.copier != nil }

// Init returns the host initializer, or nil.
func (c *Class) Init() InitFunc { return c.init }

// Parents returns the declared parents in declaration order.
func (c *Class) Parents() []*Class {
	out := make([]*Class, len(c.parents))
	for i, p := range c.parents {
		out[i] = c.reg.classes[p]
	}
	return out
}

// MRO returns the linearized hierarchy, starting with the class itself.
func (c *Class) MRO() []*Class {
	out := make([]*Class, len(c.mroPtrs))
	copy(out, c.mroPtrs)
	return out
}

// Is reports whether c is other or one of its descendants.
func (c *Class) Is(other *Class) bool {
	if other == nil || other.reg != c.reg {
		return false
	}
	for _, i := range c.mro {
		if i == other.index {
			return true
		}
	}
	return false
}

// Slot returns the slot declared on this class (not inherited).
func (c *Class) Slot(name string) (*Slot, bool) {
	s, ok := c.slots[name]
	return s, ok
}

// Slots returns the slots declared on this class in declaration order.
func (c *Class) Slots() []*Slot {
	out := make([]*Slot, 0, len(c.slotOrder))
	for _, n := range c.slotOrder {
		out = append(out, c.slots[n])
	}
	return out
}

// HasOverride reports whether the class itself installs a host override.
func (c *Class) HasOverride(name string) bool {
	_, ok := c.overrides[name]
	return ok
}

// Methods returns every method name visible on the class, sorted.
func (c *Class) Methods() []string {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	names := make([]string, 0, len(c.table))
	for n := range c.table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the dispatch target for a method name.
func (c *Class) Resolve(name string) (*Target, bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	t, ok := c.table[name]
	return t, ok
}

// ResolveAfter resolves name considering only the MRO entries that follow
// the class after. It implements host-side super calls.
func (c *Class) ResolveAfter(after *Class, name string) (*Target, bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	for i, m := range c.mroPtrs {
		if m == after {
			return resolve(c.mroPtrs[i+1:], name)
		}
	}
	return nil, false
}

// Abstract returns the unresolved abstract slots, in MRO order.
func (c *Class) Abstract() []errors.AbstractSlot {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	out := make([]errors.AbstractSlot, len(c.abstract))
	copy(out, c.abstract)
	return out
}

// Instantiable reports whether every abstract slot visible on the class is
// resolved by an override or a concrete body.
func (c *Class) Instantiable() bool {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	return len(c.abstract) == 0
}

// NativeBases returns the native classes of the MRO that can construct a
// payload, most derived first.
func (c *Class) NativeBases() []*Class {
	var out []*Class
	for _, m := range c.mroPtrs {
		if m.origin == OriginNative && m.ctor != nil {
			out = append(out, m)
		}
	}
	return out
}

// rebuild recomputes the dispatch table and the abstract slot list.
// Callers hold the registry write lock.
func (c *Class) rebuild() {
	names := make(map[string]bool)
	for _, m := range c.mroPtrs {
		for n := range m.slots {
			names[n] = true
		}
		for n := range m.overrides {
			names[n] = true
		}
	}

	table := make(map[string]*Target, len(names))
	var abstract []errors.AbstractSlot
	for n := range names {
		t, _ := resolve(c.mroPtrs, n)
		table[n] = t
		if t.Kind == TargetAbstract {
			abstract = append(abstract, errors.AbstractSlot{Owner: t.Owner.id, Name: n})
		}
	}

	pos := make(map[string]int, len(c.mroPtrs))
	for i, m := range c.mroPtrs {
		pos[m.id] = i
	}
	sort.Slice(abstract, func(i, j int) bool {
		if pos[abstract[i].Owner] != pos[abstract[j].Owner] {
			return pos[abstract[i].Owner] < pos[abstract[j].Owner]
		}
		return abstract[i].Name < abstract[j].Name
	})

	c.table = table
	c.abstract = abstract
}

// resolve walks an MRO: the first host override wins, then the nearest
// concrete native body, then the nearest abstract declaration. A native
// body keeps its own signature; overrides and abstract slots take the
// nearest declaration.
func resolve(mro []*Class, name string) (*Target, bool) {
	var decl *Slot
	var abstractOwner *Class
	for _, m := range mro {
		if s, ok := m.slots[name]; ok {
			if decl == nil {
				decl = s
			}
			if s.Kind == SlotAbstract && abstractOwner == nil {
				abstractOwner = m
			}
		}
	}

	for _, m := range mro {
		if fn, ok := m.overrides[name]; ok {
			return &Target{Name: name, Kind: TargetOverride, Owner: m, Host: fn, Decl: decl}, true
		}
	}
	for _, m := range mro {
		if s, ok := m.slots[name]; ok && s.Kind == SlotConcrete {
			return &Target{Name: name, Kind: TargetNative, Owner: m, Decl: s}, true
		}
	}
	if abstractOwner != nil {
		return &Target{Name: name, Kind: TargetAbstract, Owner: abstractOwner, Decl: decl}, true
	}
	return nil, false
}
