package runtime

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/instance"
)

// New constructs an instance of classID and returns its proxy in
// owned-copy mode.
//
// Native classes run their constructor. Host classes run the nearest
// initializer in their MRO; without one, every native base with a
// constructor is initialized with args. Classes with unresolved abstract
// slots fail with an *errors.AbstractSlotsError. A failed construction
// leaves no entry behind.
func (r *Runtime) New(ctx context.Context, classID string, args ...any) (*Proxy, error) {
	cls, err := r.reg.Lookup(classID)
	if err != nil {
		return nil, err
	}
	if !cls.Instantiable() {
		slots := cls.Abstract()
		keys := make([]string, len(slots))
		for i, s := range slots {
			keys[i] = s.Owner + "." + s.Name
		}
		return nil, errors.NewAbstractSlotsError(cls.ID(), keys)
	}

	if cls.Origin() == descriptor.OriginNative {
		return r.newNative(ctx, cls, args)
	}
	return r.newHost(ctx, cls, args)
}

func (r *Runtime) newNative(ctx context.Context, cls *descriptor.Class, args []any) (*Proxy, error) {
	ctor := cls.Constructor()
	if ctor == nil {
		return nil, errors.New(errors.PhaseConstruct, errors.KindInstantiation).
			Class(cls.ID()).
			Detail("class has no constructor").
			Build()
	}
	payload, err := ctor(ctx, args)
	if err != nil {
		return nil, errors.Instantiation(cls.ID(), err)
	}
	if err := checkPayload(cls, payload); err != nil {
		return nil, err
	}

	p := r.register(cls, instance.ModeOwnedCopy, nil, r.site("new"))
	p.addHeld(cls, payload)
	r.log.Debug("instance constructed",
		zap.String("class", cls.ID()),
		zap.Stringer("id", p.id),
	)
	return p, nil
}

func (r *Runtime) newHost(ctx context.Context, cls *descriptor.Class, args []any) (*Proxy, error) {
	p := r.register(cls, instance.ModeOwnedCopy, nil, r.site("new"))

	var err error
	if init := initializer(cls); init != nil {
		err = init(ctx, receiver{p: p, owner: cls}, args)
	} else {
		err = r.initBases(ctx, p, args)
	}
	if err != nil {
		r.abort(p)
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Instantiation(cls.ID(), err)
	}

	r.log.Debug("instance constructed",
		zap.String("class", cls.ID()),
		zap.Stringer("id", p.id),
		zap.Strings("held", p.Held()),
	)
	return p, nil
}

// initializer returns the nearest host initializer in the MRO.
func initializer(cls *descriptor.Class) descriptor.InitFunc {
	for _, c := range cls.MRO() {
		if c.Origin() == descriptor.OriginHost && c.Init() != nil {
			return c.Init()
		}
	}
	return nil
}

// initBases constructs every native base not already covered by a more
// derived payload.
func (r *Runtime) initBases(ctx context.Context, p *Proxy, args []any) error {
	for _, base := range p.class.NativeBases() {
		if _, ok := p.PayloadFor(base); ok {
			continue
		}
		if err := r.InitBase(ctx, p, base.ID(), args...); err != nil {
			return err
		}
	}
	return nil
}

// InitBase constructs the payload of a native base of p's class. Host
// initializers call it once per native base they inherit from.
func (r *Runtime) InitBase(ctx context.Context, p *Proxy, baseID string, args ...any) error {
	if err := p.check(r); err != nil {
		return err
	}
	base, err := r.reg.Lookup(baseID)
	if err != nil {
		return err
	}
	if base.Origin() != descriptor.OriginNative || !p.class.Is(base) {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			Class(p.class.ID()).
			Detail("%s is not a native base", baseID).
			Build()
	}
	if p.holds(base) {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			Class(p.class.ID()).
			Detail("native base %s already initialized", baseID).
			Build()
	}
	ctor := base.Constructor()
	if ctor == nil {
		return errors.New(errors.PhaseConstruct, errors.KindInstantiation).
			Class(baseID).
			Detail("class has no constructor").
			Build()
	}
	payload, err := ctor(ctx, args)
	if err != nil {
		return errors.Instantiation(baseID, err)
	}
	if err := checkPayload(base, payload); err != nil {
		return err
	}
	p.addHeld(base, payload)
	return nil
}

// abort undoes a construction that failed after registration.
func (r *Runtime) abort(p *Proxy) {
	p.mu.Lock()
	p.released = true
	payloads := p.held
	p.held = nil
	p.mu.Unlock()

	r.table.Unregister(p.id)
	for _, h := range payloads {
		if d, ok := h.value.(instance.Dropper); ok {
			d.Drop()
		}
	}
}

func (r *Runtime) register(cls *descriptor.Class, mode instance.Mode, share *Shared, site string) *Proxy {
	p := &Proxy{rt: r, class: cls, mode: mode, share: share}
	p.id = r.table.Register(instance.Entry{
		Class: cls.ID(),
		Mode:  mode,
		Site:  site,
		Value: p,
	})
	return p
}

func checkPayload(cls *descriptor.Class, payload any) error {
	if payload == nil {
		return errors.Instantiation(cls.ID(), fmt.Errorf("constructor returned nil"))
	}
	if t := cls.GoType(); t != nil && reflect.TypeOf(payload) != t {
		return errors.New(errors.PhaseConstruct, errors.KindTypeMismatch).
			Class(cls.ID()).
			GoType(fmt.Sprintf("%T", payload)).
			Detail("constructor must return %s", t).
			Build()
	}
	return nil
}

// wrapResult turns a native class value returned by slot into a proxy
// according to the slot's return policy. Reference and share results whose
// storage already has a live proxy of the same class return that proxy
// retained, whatever its mode: a reference to an owned value yields the
// owning proxy, not a borrowed alias.
func (r *Runtime) wrapResult(owner *descriptor.Class, slot *descriptor.Slot, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := v.(*Proxy); ok {
		if err := p.check(r); err != nil {
			return nil, err
		}
		return p, nil
	}

	declared, err := r.reg.Lookup(slot.ResultClass)
	if err != nil {
		return nil, err
	}
	site := owner.ID() + "." + slot.Name

	policy := slot.Policy
	payload := v
	share, isShare := v.(*Shared)
	if isShare {
		policy = descriptor.PolicyShare
		payload = share.Value()
	}

	cls, err := r.dynamicClass(declared, payload, slot)
	if err != nil {
		return nil, err
	}

	switch policy {
	case descriptor.PolicyCopy:
		copier := cls.Copier()
		if copier == nil {
			return nil, errors.NotCopyable(cls.ID())
		}
		dup := copier(payload)
		p := r.register(cls, instance.ModeOwnedCopy, nil, r.site(site))
		p.addHeld(cls, dup)
		return p, nil

	case descriptor.PolicyMove:
		p := r.register(cls, instance.ModeOwnedCopy, nil, r.site(site))
		p.addHeld(cls, payload)
		return p, nil

	case descriptor.PolicyReference:
		if p, ok := r.existing(payload, cls); ok {
			return p, nil
		}
		p := r.register(cls, instance.ModeBorrowed, nil, r.site(site))
		p.addHeld(cls, payload)
		return p, nil

	case descriptor.PolicyShare:
		if !isShare {
			return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
				Class(owner.ID()).
				Method(slot.Name).
				GoType(fmt.Sprintf("%T", v)).
				Detail("share policy requires a *runtime.Shared result").
				Build()
		}
		if p, ok := r.existing(payload, cls); ok {
			return p, nil
		}
		p := r.register(cls, instance.ModeShared, share.Acquire(), r.site(site))
		p.addHeld(cls, payload)
		return p, nil
	}
	return nil, errors.InvalidInput(errors.PhaseConvert, fmt.Sprintf("unknown return policy %d", policy))
}

// dynamicClass picks the most derived registered class of payload that is
// a declared.
func (r *Runtime) dynamicClass(declared *descriptor.Class, payload any, slot *descriptor.Slot) (*descriptor.Class, error) {
	if payload == nil {
		return nil, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Method(slot.Name).
			Detail("shared value already dropped").
			Build()
	}
	if cls, ok := r.reg.ForValue(payload); ok {
		if cls.Is(declared) {
			return cls, nil
		}
	} else if declared.GoType() == nil {
		return declared, nil
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
		Class(declared.ID()).
		Method(slot.Name).
		GoType(fmt.Sprintf("%T", payload)).
		Detail("result is not a %s", declared.ID()).
		Build()
}
