package runtime

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
)

// Method is a host-side method implementation.
type Method func(ctx context.Context, self *Proxy, args []any) (any, error)

// Initializer is a host-side constructor body. It typically calls
// Runtime.InitBase for each native base.
type Initializer func(ctx context.Context, self *Proxy, args []any) error

// HostClass declares a class defined on the host side. Its methods
// override same-named slots anywhere in the MRO, including abstract slots
// of native bases.
type HostClass struct {
	Methods  map[string]Method
	Init     Initializer
	Name     string
	Doc      string
	Parents  []string
	Abstract []string
}

// DefineClass registers a host class.
func (r *Runtime) DefineClass(hc HostClass) (*descriptor.Class, error) {
	spec := descriptor.ClassSpec{
		ID:        hc.Name,
		Doc:       hc.Doc,
		Parents:   hc.Parents,
		Origin:    descriptor.OriginHost,
		Overrides: make(map[string]descriptor.HostFunc, len(hc.Methods)),
	}
	for name, m := range hc.Methods {
		if m == nil {
			return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Class(hc.Name).
				Method(name).
				Detail("nil method").
				Build()
		}
		spec.Overrides[name] = hostFunc(m)
	}
	for _, name := range hc.Abstract {
		spec.Slots = append(spec.Slots, descriptor.Abstract(name))
	}
	if hc.Init != nil {
		init := hc.Init
		spec.Init = func(ctx context.Context, self descriptor.Receiver, args []any) error {
			p, _ := ProxyOf(self)
			return init(ctx, p, args)
		}
	}
	return r.reg.Register(spec)
}

// InstallOverride adds or replaces a method of a host class. Dispatch
// tables of the class and its descendants are updated before it returns.
func (r *Runtime) InstallOverride(classID, name string, m Method) error {
	if m == nil {
		return errors.InvalidInput(errors.PhaseHost, "nil method")
	}
	return r.reg.InstallOverride(classID, name, hostFunc(m))
}

func hostFunc(m Method) descriptor.HostFunc {
	return func(ctx context.Context, self descriptor.Receiver, args []any) (any, error) {
		p, ok := ProxyOf(self)
		if !ok {
			return nil, errors.New(errors.PhaseDispatch, errors.KindForeignProxy).
				Detail("receiver is not a proxy").
				Build()
		}
		return m(ctx, p, args)
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	proxyType   = reflect.TypeOf((*Proxy)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// DefineClassFrom registers a host class whose methods are the exported
// methods of impl. Method names are converted from PascalCase to
// snake_case (AbstractMethod -> abstract_method); a method named Init
// becomes the initializer.
//
// Methods may take a leading context.Context, then a leading *Proxy (the
// receiver instance), then their arguments. They may return nothing, a
// value, an error, or a value and an error.
func (r *Runtime) DefineClassFrom(name string, parents []string, impl any) (*descriptor.Class, error) {
	rv := reflect.ValueOf(impl)
	if !rv.IsValid() {
		return nil, errors.InvalidInput(errors.PhaseHost, "implementation is nil")
	}
	rt := rv.Type()

	hc := HostClass{
		Name:    name,
		Parents: parents,
		Methods: make(map[string]Method),
	}
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() {
			continue
		}
		bound := rv.Method(i)

		if method.Name == "Init" {
			m, err := adaptMethod(name, "init", bound)
			if err != nil {
				return nil, err
			}
			hc.Init = func(ctx context.Context, self *Proxy, args []any) error {
				_, err := m(ctx, self, args)
				return err
			}
			continue
		}

		slot := toSnakeCase(method.Name)
		m, err := adaptMethod(name, slot, bound)
		if err != nil {
			return nil, err
		}
		hc.Methods[slot] = m
	}
	return r.DefineClass(hc)
}

// adaptMethod wraps a bound method value as a Method.
func adaptMethod(classID, slot string, fn reflect.Value) (Method, error) {
	ft := fn.Type()

	in := 0
	wantCtx := ft.NumIn() > in && ft.In(in) == contextType
	if wantCtx {
		in++
	}
	wantSelf := ft.NumIn() > in && ft.In(in) == proxyType
	if wantSelf {
		in++
	}
	first := in

	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, badSignature(classID, slot, "second result must be error")
		}
	default:
		return nil, badSignature(classID, slot, "too many results")
	}

	return func(ctx context.Context, self *Proxy, args []any) (any, error) {
		fixed := ft.NumIn() - first
		if ft.IsVariadic() {
			fixed--
			if len(args) < fixed {
				return nil, arity(classID, slot, fixed, len(args))
			}
		} else if len(args) != fixed {
			return nil, arity(classID, slot, fixed, len(args))
		}

		callArgs := make([]reflect.Value, 0, first+len(args))
		if wantCtx {
			callArgs = append(callArgs, reflect.ValueOf(&ctx).Elem())
		}
		if wantSelf {
			callArgs = append(callArgs, reflect.ValueOf(self))
		}
		for i, a := range args {
			var pt reflect.Type
			if ft.IsVariadic() && first+i >= ft.NumIn()-1 {
				pt = ft.In(ft.NumIn() - 1).Elem()
			} else {
				pt = ft.In(first + i)
			}
			v, err := convertValue(a, pt)
			if err != nil {
				return nil, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
					Class(classID).
					Method(slot).
					Path(fmt.Sprintf("arg%d", i)).
					GoType(fmt.Sprintf("%T", a)).
					Detail("cannot use as %s: %v", pt, err).
					Build()
			}
			callArgs = append(callArgs, v)
		}

		out := fn.Call(callArgs)
		return splitResults(ft, out)
	}, nil
}

func splitResults(ft reflect.Type, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// convertValue converts a host value to a Go parameter type. Numeric values
// convert between numeric kinds; everything else must be assignable.
func convertValue(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil for %s", t)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(t.Kind()) {
		return convertNumber(v, t)
	}
	if v.Kind() == reflect.String && t.Kind() == reflect.String {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), t)
}

// convertNumber converts between numeric kinds, rejecting conversions
// that would lose the integer part or truncate a fraction.
func convertNumber(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := v.Convert(t)
	switch {
	case isFloat(t.Kind()):
		return out, nil
	case isFloat(v.Kind()):
		f := v.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
		}
		if isSigned(t.Kind()) && (f < -math.MaxInt64-1 || f >= math.MaxInt64 || out.OverflowInt(int64(f))) ||
			!isSigned(t.Kind()) && (f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f))) {
			return reflect.Value{}, fmt.Errorf("%v overflows %s", f, t)
		}
	case isSigned(v.Kind()):
		n := v.Int()
		if isSigned(t.Kind()) && out.OverflowInt(n) || !isSigned(t.Kind()) && (n < 0 || out.OverflowUint(uint64(n))) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
	default:
		n := v.Uint()
		if isSigned(t.Kind()) && (n > math.MaxInt64 || out.OverflowInt(int64(n))) || !isSigned(t.Kind()) && out.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
	}
	return out, nil
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func badSignature(classID, slot, detail string) *errors.Error {
	return errors.New(errors.PhaseHost, errors.KindInvalidInput).
		Class(classID).
		Method(slot).
		Detail("%s", detail).
		Build()
}

func arity(classID, slot string, want, got int) *errors.Error {
	return errors.New(errors.PhaseConvert, errors.KindInvalidInput).
		Class(classID).
		Method(slot).
		Detail("expected %d arguments, got %d", want, got).
		Build()
}

// toSnakeCase converts PascalCase to snake_case.
// Acronyms stay together: GetHTTPCode -> get_http_code.
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// The last capital of a run followed by lowercase starts the next word.
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			result.WriteByte('_')
		}
		for j := i; j < end; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return result.String()
}
