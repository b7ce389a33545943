package runtime

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	bridgeerrors "github.com/wippyai/objbridge/errors"
)

type animal struct{ name string }

type dog struct {
	animal
	tricks int32
}

type cat struct {
	*animal
	lives int32
}

type rock struct{ weight int32 }

func registerAnimals(t *testing.T, rt *Runtime) {
	t.Helper()

	specs := []descriptor.ClassSpec{
		{
			ID:   "Animal",
			Type: reflect.TypeOf((*animal)(nil)),
			New: func(context.Context, []any) (any, error) {
				return &animal{name: "animal"}, nil
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("name", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*animal](self).name, nil
				}).Returns(wit.String{}),
				descriptor.Concrete("rename", func(_ context.Context, self descriptor.Receiver, args []any) (any, error) {
					payload[*animal](self).name = args[0].(string)
					return nil, nil
				}).WithParams(descriptor.Arg("name", wit.String{})),
				descriptor.Concrete("greet", func(_ context.Context, _ descriptor.Receiver, args []any) (any, error) {
					return "hi " + args[0].(*animal).name, nil
				}).WithParams(descriptor.ClassArg("other", "Animal")).Returns(wit.String{}),
			},
		},
		{
			ID:      "Dog",
			Type:    reflect.TypeOf((*dog)(nil)),
			Parents: []string{"Animal"},
			New: func(context.Context, []any) (any, error) {
				return &dog{animal: animal{name: "rex"}, tricks: 3}, nil
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("tricks", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*dog](self).tricks, nil
				}).Returns(wit.S32{}),
			},
		},
		{
			ID:      "Cat",
			Type:    reflect.TypeOf((*cat)(nil)),
			Parents: []string{"Animal"},
			New: func(context.Context, []any) (any, error) {
				return &cat{animal: &animal{name: "tom"}, lives: 9}, nil
			},
		},
		{
			ID:      "Golem",
			Type:    reflect.TypeOf((*rock)(nil)),
			Parents: []string{"Animal"},
			New: func(context.Context, []any) (any, error) {
				return &rock{weight: 100}, nil
			},
		},
	}
	for _, spec := range specs {
		if _, err := rt.Register(spec); err != nil {
			t.Fatalf("Register(%s): %v", spec.ID, err)
		}
	}
}

func TestNativeInheritance_TypedPayloads(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerAnimals(t, rt)

	tests := []struct {
		class string
		want  string
	}{
		{class: "Animal", want: "animal"},
		{class: "Dog", want: "rex"},
		{class: "Cat", want: "tom"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			p, err := rt.New(ctx, tt.class)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer p.Release()

			v, err := p.Call(ctx, "name")
			if err != nil {
				t.Fatalf("name: %v", err)
			}
			if v != tt.want {
				t.Errorf("name = %v, want %s", v, tt.want)
			}
		})
	}
}

func TestNativeInheritance_BaseMethodMutatesEmbedded(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerAnimals(t, rt)

	d, err := rt.New(ctx, "Dog")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	if _, err := d.Call(ctx, "rename", "max"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := d.Payload().(*dog).name; got != "max" {
		t.Errorf("embedded name = %q, want max", got)
	}
	if v, err := d.Call(ctx, "tricks"); err != nil || v != int32(3) {
		t.Errorf("tricks = %v, %v", v, err)
	}
	if got := d.Held(); len(got) != 1 || got[0] != "Dog" {
		t.Errorf("held = %v", got)
	}
}

func TestNativeInheritance_ClassArgument(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerAnimals(t, rt)

	a, err := rt.New(ctx, "Animal")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	c, err := rt.New(ctx, "Cat")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release()

	v, err := a.Call(ctx, "greet", c)
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if v != "hi tom" {
		t.Errorf("greet = %v", v)
	}
}

func TestNativeInheritance_NoEmbeddedBase(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerAnimals(t, rt)

	g, err := rt.New(ctx, "Golem")
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	if _, err := g.Call(ctx, "name"); !errors.Is(err, bridgeerrors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	a, err := rt.New(ctx, "Animal")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	if _, err := a.Call(ctx, "greet", g); !errors.Is(err, bridgeerrors.ErrTypeMismatch) {
		t.Errorf("greet(Golem): expected type mismatch, got %v", err)
	}
}

func TestDispatch_AbstractRedeclarationKeepsNativeSignature(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	if _, err := rt.DefineClass(HostClass{
		Name:     "Redeclared",
		Parents:  []string{"Point"},
		Abstract: []string{"set_x"},
	}); err != nil {
		t.Fatal(err)
	}

	p, err := rt.New(ctx, "Redeclared", 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	if _, err := p.Call(ctx, "set_x", 5); err != nil {
		t.Fatalf("set_x: %v", err)
	}
	v, err := p.Call(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if v != int32(5) {
		t.Errorf("x = %v, want 5", v)
	}
	if _, err := p.Call(ctx, "set_x"); !errors.Is(err, bridgeerrors.ErrInvalidInput) {
		t.Errorf("set_x without arguments: %v", err)
	}
}
