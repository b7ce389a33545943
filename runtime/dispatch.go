package runtime

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
)

// Invoke calls method on p. Resolution follows p's class MRO: the first
// host override wins, then the nearest concrete native body. A name that
// only has abstract declarations fails with errors.KindAbstractMethod, an
// unknown name with errors.KindNotFound.
func (r *Runtime) Invoke(ctx context.Context, p *Proxy, method string, args ...any) (any, error) {
	if err := p.check(r); err != nil {
		return nil, err
	}
	tgt, ok := p.class.Resolve(method)
	if !ok {
		return nil, errors.MethodNotFound(p.class.ID(), method)
	}
	return r.call(ctx, p, tgt, args)
}

// Super calls method on p resolving only the MRO entries that follow the
// class after. Host overrides use it to reach the implementation they
// replace.
func (r *Runtime) Super(ctx context.Context, p *Proxy, after, method string, args ...any) (any, error) {
	if err := p.check(r); err != nil {
		return nil, err
	}
	cls, err := r.reg.Lookup(after)
	if err != nil {
		return nil, err
	}
	if !p.class.Is(cls) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Class(p.class.ID()).
			Method(method).
			Detail("%s is not in the class hierarchy", after).
			Build()
	}
	tgt, ok := p.class.ResolveAfter(cls, method)
	if !ok {
		return nil, errors.MethodNotFound(after, method)
	}
	return r.call(ctx, p, tgt, args)
}

func (r *Runtime) call(ctx context.Context, p *Proxy, tgt *descriptor.Target, args []any) (any, error) {
	switch tgt.Kind {
	case descriptor.TargetAbstract:
		r.log.Debug("abstract method called",
			zap.String("class", p.class.ID()),
			zap.String("method", tgt.Name),
			zap.String("declared_by", tgt.Owner.ID()),
		)
		return nil, errors.AbstractMethod(p.class.ID(), tgt.Name)

	case descriptor.TargetOverride:
		return tgt.Host(ctx, receiver{p: p, owner: tgt.Owner}, args)
	}

	owner := tgt.Owner
	if owner.GoType() != nil || owner.Constructor() != nil {
		if _, err := p.payloadFor(owner); err != nil {
			return nil, err
		}
	}

	converted, err := r.convertArgs(p.class, tgt.Decl, args)
	if err != nil {
		return nil, err
	}
	res, err := tgt.Native()(ctx, receiver{p: p, owner: owner}, converted)
	if err != nil {
		r.log.Debug("native method failed",
			zap.String("class", p.class.ID()),
			zap.String("method", tgt.Name),
			zap.Error(err),
		)
		return nil, err
	}
	return r.convertResult(owner, tgt.Decl, res)
}

// convertArgs checks arguments against the slot declaration. Class
// parameters take a proxy and receive its payload for the declared class.
func (r *Runtime) convertArgs(cls *descriptor.Class, slot *descriptor.Slot, args []any) ([]any, error) {
	if slot == nil {
		return args, nil
	}
	if !slot.Variadic && len(args) != len(slot.Params) {
		return nil, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Class(cls.ID()).
			Method(slot.Name).
			Detail("expected %d arguments, got %d", len(slot.Params), len(args)).
			Build()
	}

	out := make([]any, len(args))
	for i, a := range args {
		if i >= len(slot.Params) {
			out[i] = a
			continue
		}
		param := slot.Params[i]
		path := param.Name
		if path == "" {
			path = "arg" + strconv.Itoa(i)
		}

		switch {
		case param.Class != "":
			v, err := r.classArg(cls, slot, param, path, a)
			if err != nil {
				return nil, err
			}
			out[i] = v

		case param.Type != nil:
			v, err := descriptor.Coerce(param.Type, a)
			if err != nil {
				if be, ok := err.(*errors.Error); ok {
					be.Class = cls.ID()
					be.Method = slot.Name
					be.Path = []string{path}
				}
				return nil, err
			}
			out[i] = v

		default:
			out[i] = a
		}
	}
	return out, nil
}

func (r *Runtime) classArg(cls *descriptor.Class, slot *descriptor.Slot, param descriptor.Param, path string, a any) (any, error) {
	want, err := r.reg.Lookup(param.Class)
	if err != nil {
		return nil, err
	}
	p, ok := a.(*Proxy)
	if !ok {
		return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
			Class(cls.ID()).
			Method(slot.Name).
			Path(path).
			GoType(fmt.Sprintf("%T", a)).
			Detail("expected a %s proxy", param.Class).
			Build()
	}
	if err := p.check(r); err != nil {
		return nil, err
	}
	if !p.class.Is(want) {
		return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
			Class(cls.ID()).
			Method(slot.Name).
			Path(path).
			Detail("%s is not a %s", p.class.ID(), param.Class).
			Build()
	}
	return p.payloadFor(want)
}

// convertResult applies the slot's declared result type or return policy.
func (r *Runtime) convertResult(owner *descriptor.Class, slot *descriptor.Slot, res any) (any, error) {
	if slot == nil {
		return res, nil
	}
	if slot.ResultClass != "" {
		return r.wrapResult(owner, slot, res)
	}
	if s, ok := res.(*Shared); ok {
		return r.wrapUntypedShare(owner, slot, s)
	}
	if slot.Result != nil {
		v, err := descriptor.Coerce(slot.Result, res)
		if err != nil {
			if be, ok := err.(*errors.Error); ok {
				be.Class = owner.ID()
				be.Method = slot.Name
				be.Path = []string{"result"}
			}
			return nil, err
		}
		return v, nil
	}
	return res, nil
}

// wrapUntypedShare wraps a *Shared returned by a slot that declares no
// result class, using the class registered for the shared value's type.
func (r *Runtime) wrapUntypedShare(owner *descriptor.Class, slot *descriptor.Slot, s *Shared) (any, error) {
	cls, ok := r.reg.ForValue(s.Value())
	if !ok {
		return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
			Class(owner.ID()).
			Method(slot.Name).
			GoType(fmt.Sprintf("%T", s.Value())).
			Detail("shared value has no registered class").
			Build()
	}
	typed := *slot
	typed.ResultClass = cls.ID()
	typed.Policy = descriptor.PolicyShare
	return r.wrapResult(owner, &typed, s)
}
