// Package testbinding registers the reference test module: a small set of
// native classes exercising every return policy, parameter conversion,
// multiple and diamond inheritance, abstract methods and wasm-backed
// virtual dispatch.
package testbinding

import (
	"context"
	"reflect"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/internal/wasmfixture"
	"github.com/wippyai/objbridge/runtime"
)

// CounterModule is the name the wasm counter module is loaded under.
const CounterModule = "testbinding.counter"

// Dummy is the payload of DummyA..DummyD.
type Dummy struct{ Letter string }

// Nocopyable has no copier; it can only be moved, referenced or shared.
type Nocopyable struct{ Foo string }

// Copyable is a value type returned by copy.
type Copyable struct{ Value int32 }

// ReturnValues is the payload of TestReturnValues.
type ReturnValues struct {
	Ref    *Nocopyable
	Shared *runtime.Shared
	Item   *Copyable
}

// ParameterValues is the payload of TestParameterValues.
type ParameterValues struct{}

// Greeter is the payload of AbstractGreeter.
type Greeter struct{}

// Inspector is the payload of InternalsInspector.
type Inspector struct{ rt *runtime.Runtime }

// Classes lists the class ids Register adds, in registration order.
var Classes = []string{
	"Nocopyable",
	"Copyable",
	"TestReturnValues",
	"TestParameterValues",
	"DummyA",
	"DummyB",
	"DummyC",
	"DummyD",
	"AbstractGreeter",
	"InternalsInspector",
	"WasmCounter",
}

func ctor[T any](fn func() *T) descriptor.Constructor {
	return func(context.Context, []any) (any, error) { return fn(), nil }
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)) }

func method[T any](fn func(p *T, args []any) (any, error)) descriptor.NativeFunc {
	return func(_ context.Context, self descriptor.Receiver, args []any) (any, error) {
		return fn(self.Value().(*T), args)
	}
}

// Register loads the counter module and registers the reference classes.
func Register(ctx context.Context, rt *runtime.Runtime) error {
	mod, err := rt.LoadModule(ctx, CounterModule, wasmfixture.Counter, wasmfixture.CounterSlots)
	if err != nil {
		return err
	}
	getOne, err := mod.Func("get_one_int", nil, wit.S32{})
	if err != nil {
		return err
	}
	twice, err := mod.Func("twice_value", nil, wit.S32{})
	if err != nil {
		return err
	}
	add, err := mod.Func("add", []wit.Type{wit.S32{}, wit.S32{}}, wit.S32{})
	if err != nil {
		return err
	}

	specs := []descriptor.ClassSpec{
		{
			ID:   "Nocopyable",
			Type: typeOf[Nocopyable](),
			New:  ctor(func() *Nocopyable { return &Nocopyable{Foo: "foo"} }),
			Slots: []descriptor.Slot{
				descriptor.Concrete("foo", method(func(n *Nocopyable, _ []any) (any, error) {
					return n.Foo, nil
				})).Returns(wit.String{}),
				descriptor.Concrete("set_foo", method(func(n *Nocopyable, args []any) (any, error) {
					n.Foo = args[0].(string)
					return nil, nil
				})).WithParams(descriptor.Arg("value", wit.String{})),
			},
		},
		{
			ID:   "Copyable",
			Type: typeOf[Copyable](),
			New:  ctor(func() *Copyable { return &Copyable{} }),
			Copy: func(v any) any {
				c := *v.(*Copyable)
				return &c
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("value", method(func(c *Copyable, _ []any) (any, error) {
					return c.Value, nil
				})).Returns(wit.S32{}),
				descriptor.Concrete("set_value", method(func(c *Copyable, args []any) (any, error) {
					c.Value = args[0].(int32)
					return nil, nil
				})).WithParams(descriptor.Arg("value", wit.S32{})),
			},
		},
		{
			ID:   "TestReturnValues",
			Type: typeOf[ReturnValues](),
			New: ctor(func() *ReturnValues {
				return &ReturnValues{
					Ref:    &Nocopyable{Foo: "foo"},
					Shared: runtime.NewShared(&Nocopyable{Foo: "foo"}),
					Item:   &Copyable{Value: 7},
				}
			}),
			Slots: []descriptor.Slot{
				descriptor.Concrete("get_one_int", method(func(*ReturnValues, []any) (any, error) {
					return 1, nil
				})).Returns(wit.S32{}),
				descriptor.Concrete("get_hello_string", method(func(*ReturnValues, []any) (any, error) {
					return "hello", nil
				})).Returns(wit.String{}),
				descriptor.Concrete("get_nocopyable", method(func(*ReturnValues, []any) (any, error) {
					return &Nocopyable{Foo: "foo"}, nil
				})).ReturnsClass("Nocopyable", descriptor.PolicyMove),
				descriptor.Concrete("get_nocopyable_ref", method(func(r *ReturnValues, _ []any) (any, error) {
					return r.Ref, nil
				})).ReturnsClass("Nocopyable", descriptor.PolicyReference),
				descriptor.Concrete("get_nocopyable_shared", method(func(r *ReturnValues, _ []any) (any, error) {
					return r.Shared, nil
				})).ReturnsClass("Nocopyable", descriptor.PolicyShare),
				descriptor.Concrete("get_nocopyable_copy", method(func(r *ReturnValues, _ []any) (any, error) {
					return r.Ref, nil
				})).ReturnsClass("Nocopyable", descriptor.PolicyCopy),
				descriptor.Concrete("get_copyable", method(func(r *ReturnValues, _ []any) (any, error) {
					return r.Item, nil
				})).ReturnsClass("Copyable", descriptor.PolicyCopy),
			},
		},
		{
			ID:   "TestParameterValues",
			Type: typeOf[ParameterValues](),
			New:  ctor(func() *ParameterValues { return &ParameterValues{} }),
			Slots: []descriptor.Slot{
				descriptor.Concrete("take_one_int", method(func(_ *ParameterValues, args []any) (any, error) {
					return args[0].(int32) == 1, nil
				})).WithParams(descriptor.Arg("value", wit.S32{})).Returns(wit.Bool{}),
				descriptor.Concrete("take_hello_string", method(func(_ *ParameterValues, args []any) (any, error) {
					return args[0].(string) == "hello", nil
				})).WithParams(descriptor.Arg("value", wit.String{})).Returns(wit.Bool{}),
				descriptor.Concrete("take_nocopyable_ref", method(func(_ *ParameterValues, args []any) (any, error) {
					n := args[0].(*Nocopyable)
					if n.Foo != "foo" {
						return false, nil
					}
					n.Foo = "bar"
					return true, nil
				})).WithParams(descriptor.ClassArg("value", "Nocopyable")).Returns(wit.Bool{}),
			},
		},
		dummy("A"),
		dummy("B"),
		dummy("C"),
		dummy("D"),
		{
			ID:   "AbstractGreeter",
			Type: typeOf[Greeter](),
			New:  ctor(func() *Greeter { return &Greeter{} }),
			Slots: []descriptor.Slot{
				descriptor.Concrete("say_hello", method(func(*Greeter, []any) (any, error) {
					return "hello", nil
				})).Returns(wit.String{}),
				descriptor.Abstract("abstract_method"),
				descriptor.Concrete("call_abstract", func(ctx context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return self.Call(ctx, "abstract_method")
				}).Returns(wit.String{}),
			},
		},
		{
			ID:   "InternalsInspector",
			Type: typeOf[Inspector](),
			New:  ctor(func() *Inspector { return &Inspector{rt: rt} }),
			Slots: []descriptor.Slot{
				descriptor.Concrete("instances_count", method(func(i *Inspector, _ []any) (any, error) {
					return i.rt.Count(), nil
				})).Returns(wit.U32{}),
				descriptor.Concrete("dump_instances", method(func(i *Inspector, _ []any) (any, error) {
					return i.rt.Dump(), nil
				})).Returns(wit.String{}),
				descriptor.Concrete("types_count", method(func(i *Inspector, _ []any) (any, error) {
					return i.rt.TypesCount(), nil
				})).Returns(wit.U32{}),
			},
		},
		{
			ID: "WasmCounter",
			Slots: []descriptor.Slot{
				descriptor.Abstract("value"),
				descriptor.Concrete("get_one_int", getOne).Returns(wit.S32{}),
				descriptor.Concrete("twice_value", twice).Returns(wit.S32{}),
				descriptor.Concrete("add", add).
					WithParams(descriptor.Arg("a", wit.S32{}), descriptor.Arg("b", wit.S32{})).
					Returns(wit.S32{}),
			},
		},
	}

	for _, spec := range specs {
		if _, err := rt.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func dummy(letter string) descriptor.ClassSpec {
	return descriptor.ClassSpec{
		ID:  "Dummy" + letter,
		New: func(context.Context, []any) (any, error) { return &Dummy{Letter: letter}, nil },
		Slots: []descriptor.Slot{
			descriptor.Concrete("say_"+strings.ToLower(letter), method(func(d *Dummy, _ []any) (any, error) {
				return d.Letter, nil
			})).Returns(wit.String{}),
		},
	}
}
