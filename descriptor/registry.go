package descriptor

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/linearize"
)

// ClassSpec describes a class to register.
type ClassSpec struct {
	// Type is the native payload type. It must be a pointer type and is
	// used to map native values back to their class.
	Type reflect.Type

	// New constructs the native payload. Classes without one can only be
	// produced by native methods.
	New Constructor

	// Copy copies a payload. Nil marks the class as not copyable.
	Copy Copier

	// Init is the initializer of a host class.
	Init InitFunc

	// Overrides are host methods, keyed by slot name. Host classes only.
	Overrides map[string]HostFunc

	ID      string
	Doc     string
	Parents []string
	Slots   []Slot
	Origin  Origin
}

// Registry holds class descriptors. It is append-only.
type Registry struct {
	byID    map[string]int
	byType  map[reflect.Type]int
	classes []*Class
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]int),
		byType: make(map[reflect.Type]int),
	}
}

// Register validates and linearizes a class, then records it.
// A failed registration leaves the registry unchanged.
func (r *Registry) Register(spec ClassSpec) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.ID == "" {
		return nil, errors.InvalidInput(errors.PhaseRegister, "class id is empty")
	}
	if _, exists := r.byID[spec.ID]; exists {
		return nil, errors.DuplicateRegistration(spec.ID)
	}

	parents := make([]*Class, 0, len(spec.Parents))
	for _, pid := range spec.Parents {
		idx, ok := r.byID[pid]
		if !ok {
			return nil, errors.UnknownParent(spec.ID, pid)
		}
		p := r.classes[idx]
		if spec.Origin == OriginNative && p.origin == OriginHost {
			return nil, invalid(spec.ID, "native class cannot derive from host class %s", pid)
		}
		parents = append(parents, p)
	}

	if err := r.validate(spec); err != nil {
		return nil, err
	}

	c := &Class{
		reg:       r,
		id:        spec.ID,
		doc:       spec.Doc,
		origin:    spec.Origin,
		goType:    spec.Type,
		ctor:      spec.New,
		copier:    spec.Copy,
		init:      spec.Init,
		index:     len(r.classes),
		slots:     make(map[string]*Slot, len(spec.Slots)),
		overrides: make(map[string]HostFunc, len(spec.Overrides)),
	}
	for i := range spec.Slots {
		s := spec.Slots[i]
		s.Params = append([]Param(nil), s.Params...)
		c.slots[s.Name] = &s
		c.slotOrder = append(c.slotOrder, s.Name)
	}
	for n, fn := range spec.Overrides {
		c.overrides[n] = fn
	}
	for _, p := range parents {
		c.parents = append(c.parents, p.index)
	}

	mro, err := linearize.C3(c, parents, func(p *Class) []*Class { return p.mroPtrs })
	if err != nil {
		return nil, err
	}
	c.mroPtrs = mro
	c.mro = make([]int, len(mro))
	for i, m := range mro {
		c.mro[i] = m.index
	}
	c.rebuild()

	r.classes = append(r.classes, c)
	r.byID[c.id] = c.index
	if c.goType != nil {
		r.byType[c.goType] = c.index
	}

	Logger().Debug("class registered",
		zapClass(c.id),
		zapOrigin(c.origin),
		zapMRO(mro),
	)
	return c, nil
}

func (r *Registry) validate(spec ClassSpec) error {
	if spec.Type != nil {
		if spec.Type.Kind() != reflect.Pointer {
			return invalid(spec.ID, "payload type %s is not a pointer type", spec.Type)
		}
		if idx, taken := r.byType[spec.Type]; taken {
			return invalid(spec.ID, "payload type %s already bound to %s", spec.Type, r.classes[idx].id)
		}
	}
	if spec.Origin == OriginNative && (len(spec.Overrides) > 0 || spec.Init != nil) {
		return invalid(spec.ID, "native classes cannot carry host overrides or initializers")
	}
	if spec.Origin == OriginHost && (spec.Type != nil || spec.New != nil || spec.Copy != nil) {
		return invalid(spec.ID, "host classes cannot carry a native payload")
	}

	seen := make(map[string]bool, len(spec.Slots))
	for _, s := range spec.Slots {
		switch {
		case s.Name == "":
			return invalid(spec.ID, "slot with empty name")
		case seen[s.Name]:
			return invalid(spec.ID, "duplicate slot %s", s.Name)
		case s.Kind == SlotConcrete && s.Body == nil:
			return invalid(spec.ID, "concrete slot %s has no body", s.Name)
		case s.Kind == SlotAbstract && s.Body != nil:
			return invalid(spec.ID, "abstract slot %s has a body", s.Name)
		case spec.Origin == OriginHost && s.Kind == SlotConcrete:
			return invalid(spec.ID, "host class declares concrete slot %s; use an override", s.Name)
		}
		seen[s.Name] = true
	}
	for n, fn := range spec.Overrides {
		if n == "" || fn == nil {
			return invalid(spec.ID, "override %q is empty", n)
		}
	}
	return nil
}

// Lookup returns the class registered under id.
func (r *Registry) Lookup(id string) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		err := errors.NotFound(errors.PhaseRegister, "class", id)
		err.Class = id
		return nil, err
	}
	return r.classes[idx], nil
}

// ByIndex returns the class at arena index i.
func (r *Registry) ByIndex(i int) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.classes) {
		return nil, false
	}
	return r.classes[i], true
}

// ForType returns the class whose payload type is t.
func (r *Registry) ForType(t reflect.Type) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byType[t]
	if !ok {
		return nil, false
	}
	return r.classes[idx], true
}

// ForValue returns the class of a native payload value.
func (r *Registry) ForValue(v any) (*Class, bool) {
	if v == nil {
		return nil, false
	}
	return r.ForType(reflect.TypeOf(v))
}

// Classes returns all classes in registration order.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// InstallOverride adds or replaces a host override on a host class and
// rebuilds the dispatch tables of the class and its descendants.
func (r *Registry) InstallOverride(classID, name string, fn HostFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byID[classID]
	if !ok {
		err := errors.NotFound(errors.PhaseHost, "class", classID)
		err.Class = classID
		return err
	}
	c := r.classes[idx]
	if c.origin != OriginHost {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Class(classID).
			Method(name).
			Detail("overrides can only be installed on host classes").
			Build()
	}
	if name == "" || fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "override name and function are required")
	}

	c.overrides[name] = fn
	// Descendants are always registered after their ancestors.
	for _, d := range r.classes[idx:] {
		if d.Is(c) {
			d.rebuild()
		}
	}
	return nil
}

func invalid(classID, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
		Class(classID).
		Detail(format, args...).
		Build()
}

func mroNames(mro []*Class) []string {
	out := make([]string, len(mro))
	for i, m := range mro {
		out[i] = m.id
	}
	return out
}

func (c *Class) String() string {
	return fmt.Sprintf("%s(%s)", c.id, c.origin)
}
