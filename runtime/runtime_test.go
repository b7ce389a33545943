package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	bridgeerrors "github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/instance"
)

type point struct {
	drops *int
	x     int32
}

func (p *point) Drop() {
	if p.drops != nil {
		*p.drops++
	}
}

type holder struct {
	inner *Shared
	pt    *point
}

type nocopy struct{ name string }

func payload[T any](self descriptor.Receiver) T {
	return self.Value().(T)
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := New(&Config{Table: instance.NewTable()})
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

// registerFixtures registers Point, Holder, Nocopy and Shape.
func registerFixtures(t *testing.T, rt *Runtime, drops *int) {
	t.Helper()

	specs := []descriptor.ClassSpec{
		{
			ID:   "Point",
			Type: reflect.TypeOf((*point)(nil)),
			New: func(_ context.Context, args []any) (any, error) {
				p := &point{drops: drops}
				if len(args) > 0 {
					v, err := descriptor.Coerce(wit.S32{}, args[0])
					if err != nil {
						return nil, err
					}
					p.x = v.(int32)
				}
				return p, nil
			},
			Copy: func(v any) any {
				c := *v.(*point)
				return &c
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("x", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*point](self).x, nil
				}).Returns(wit.S32{}),
				descriptor.Concrete("set_x", func(_ context.Context, self descriptor.Receiver, args []any) (any, error) {
					payload[*point](self).x = args[0].(int32)
					return nil, nil
				}).WithParams(descriptor.Arg("v", wit.S32{})),
				descriptor.Concrete("clone", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return self.Value(), nil
				}).ReturnsClass("Point", descriptor.PolicyCopy),
				descriptor.Concrete("fresh", func(context.Context, descriptor.Receiver, []any) (any, error) {
					return &point{x: 7, drops: drops}, nil
				}).ReturnsClass("Point", descriptor.PolicyMove),
				descriptor.Concrete("itself", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return self.Value(), nil
				}).ReturnsClass("Point", descriptor.PolicyReference),
				descriptor.Concrete("add", func(_ context.Context, self descriptor.Receiver, args []any) (any, error) {
					return payload[*point](self).x + args[0].(*point).x, nil
				}).WithParams(descriptor.ClassArg("other", "Point")).Returns(wit.S32{}),
			},
		},
		{
			ID:   "Holder",
			Type: reflect.TypeOf((*holder)(nil)),
			New: func(context.Context, []any) (any, error) {
				return &holder{inner: NewShared(&point{x: 1}), pt: &point{x: 2}}, nil
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("inner", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*holder](self).inner, nil
				}).ReturnsClass("Point", descriptor.PolicyShare),
				descriptor.Concrete("pt", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*holder](self).pt, nil
				}).ReturnsClass("Point", descriptor.PolicyReference),
				descriptor.Concrete("pt_copy", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return payload[*holder](self).pt, nil
				}).ReturnsClass("Point", descriptor.PolicyCopy),
			},
		},
		{
			ID:   "Nocopy",
			Type: reflect.TypeOf((*nocopy)(nil)),
			New: func(context.Context, []any) (any, error) {
				return &nocopy{name: "n"}, nil
			},
			Slots: []descriptor.Slot{
				descriptor.Concrete("again", func(_ context.Context, self descriptor.Receiver, _ []any) (any, error) {
					return self.Value(), nil
				}).ReturnsClass("Nocopy", descriptor.PolicyCopy),
			},
		},
		{
			ID: "Shape",
			Slots: []descriptor.Slot{
				descriptor.Abstract("area"),
				descriptor.Concrete("describe", func(ctx context.Context, self descriptor.Receiver, _ []any) (any, error) {
					a, err := self.Call(ctx, "area")
					if err != nil {
						return nil, err
					}
					return fmt.Sprintf("area=%v", a), nil
				}).Returns(wit.String{}),
			},
		},
	}
	for _, spec := range specs {
		if _, err := rt.Register(spec); err != nil {
			t.Fatalf("Register(%s): %v", spec.ID, err)
		}
	}
}

func TestRuntime_NewNative(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	p, err := rt.New(ctx, "Point", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Mode() != instance.ModeOwnedCopy {
		t.Errorf("mode = %s", p.Mode())
	}
	if p.Refs() != 1 || rt.Count() != 1 {
		t.Errorf("refs = %d, count = %d", p.Refs(), rt.Count())
	}
	if got := p.Held(); len(got) != 1 || got[0] != "Point" {
		t.Errorf("held = %v", got)
	}

	v, err := p.Call(ctx, "x")
	if err != nil {
		t.Fatalf("x: %v", err)
	}
	if v != int32(3) {
		t.Errorf("x = %#v, want int32(3)", v)
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if rt.Count() != 0 {
		t.Errorf("count after release = %d", rt.Count())
	}
}

func TestRuntime_NewErrors(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	t.Run("unknown class", func(t *testing.T) {
		_, err := rt.New(ctx, "Missing")
		if !errors.Is(err, bridgeerrors.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("abstract class", func(t *testing.T) {
		_, err := rt.New(ctx, "Shape")
		var ase *bridgeerrors.AbstractSlotsError
		if !errors.As(err, &ase) {
			t.Fatalf("expected AbstractSlotsError, got %v", err)
		}
		if len(ase.Slots) != 1 || ase.Slots[0].Owner != "Shape" || ase.Slots[0].Name != "area" {
			t.Errorf("slots = %+v", ase.Slots)
		}
		if !errors.Is(err, bridgeerrors.ErrInstantiation) {
			t.Error("abstract slots error should match ErrInstantiation")
		}
	})

	t.Run("constructor failure", func(t *testing.T) {
		_, err := rt.New(ctx, "Point", "not a number")
		if !errors.Is(err, bridgeerrors.ErrInstantiation) {
			t.Fatalf("expected instantiation error, got %v", err)
		}
	})

	t.Run("wrong payload type", func(t *testing.T) {
		_, err := rt.Register(descriptor.ClassSpec{
			ID:   "Liar",
			Type: reflect.TypeOf((*point)(nil)).Elem(),
		})
		if !errors.Is(err, bridgeerrors.ErrInvalidInput) {
			t.Fatalf("expected invalid input for non-pointer type, got %v", err)
		}
	})

	if rt.Count() != 0 {
		t.Errorf("failed constructions left %d entries", rt.Count())
	}
}

func TestProxy_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	drops := 0
	registerFixtures(t, rt, &drops)

	p, err := rt.New(ctx, "Point")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Retain(); err != nil {
		t.Fatal(err)
	}
	if p.Refs() != 2 {
		t.Fatalf("refs = %d, want 2", p.Refs())
	}

	_ = p.Release()
	if !p.Live() || drops != 0 {
		t.Fatalf("proxy died early: live=%v drops=%d", p.Live(), drops)
	}
	_ = p.Release()
	if p.Live() || drops != 1 {
		t.Fatalf("expected drop on last release: live=%v drops=%d", p.Live(), drops)
	}

	if _, err := p.Call(ctx, "x"); !errors.Is(err, bridgeerrors.ErrReleased) {
		t.Errorf("call after release: %v", err)
	}
	if err := p.Release(); !errors.Is(err, bridgeerrors.ErrReleased) {
		t.Errorf("double release: %v", err)
	}
	if err := p.Retain(); !errors.Is(err, bridgeerrors.ErrReleased) {
		t.Errorf("retain after release: %v", err)
	}
}

func TestProxy_ForeignRuntime(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)
	other := New(&Config{Registry: rt.Registry(), Table: rt.Table()})

	p, err := rt.New(ctx, "Point")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	if _, err := other.Invoke(ctx, p, "x"); !errors.Is(err, bridgeerrors.ErrForeignProxy) {
		t.Fatalf("expected foreign proxy, got %v", err)
	}
}

func TestReturnPolicies(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	drops := 0
	registerFixtures(t, rt, &drops)

	p, err := rt.New(ctx, "Point", 5)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	t.Run("copy", func(t *testing.T) {
		v, err := p.Call(ctx, "clone")
		if err != nil {
			t.Fatal(err)
		}
		c := v.(*Proxy)
		if c == p || c.Payload() == p.Payload() {
			t.Fatal("copy must yield a distinct instance")
		}
		if c.Mode() != instance.ModeOwnedCopy || rt.Count() != 2 {
			t.Errorf("mode = %s, count = %d", c.Mode(), rt.Count())
		}
		if x, _ := c.Call(ctx, "x"); x != int32(5) {
			t.Errorf("copied x = %v", x)
		}
		_ = c.Release()
		if rt.Count() != 1 {
			t.Errorf("count = %d after releasing the copy", rt.Count())
		}
	})

	t.Run("move", func(t *testing.T) {
		a, err := p.Call(ctx, "fresh")
		if err != nil {
			t.Fatal(err)
		}
		b, err := p.Call(ctx, "fresh")
		if err != nil {
			t.Fatal(err)
		}
		if a.(*Proxy).ID() == b.(*Proxy).ID() {
			t.Error("moved results must be distinct")
		}
		_ = a.(*Proxy).Release()
		_ = b.(*Proxy).Release()
	})

	t.Run("reference to self", func(t *testing.T) {
		v, err := p.Call(ctx, "itself")
		if err != nil {
			t.Fatal(err)
		}
		if v.(*Proxy) != p {
			t.Fatal("reference to wrapped storage must return the same proxy")
		}
		if v.(*Proxy).Mode() != instance.ModeOwnedCopy {
			t.Errorf("reference into owned storage keeps the owning mode, got %s", v.(*Proxy).Mode())
		}
		if p.Refs() != 2 || rt.Count() != 1 {
			t.Errorf("refs = %d, count = %d", p.Refs(), rt.Count())
		}
		_ = p.Release()
	})

	if drops != 3 {
		t.Errorf("drops = %d, want 3", drops)
	}
}

func TestReturnPolicies_Borrowed(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	drops := 0
	registerFixtures(t, rt, &drops)

	h, err := rt.New(ctx, "Holder")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	a, err := h.Call(ctx, "pt")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Call(ctx, "pt")
	if err != nil {
		t.Fatal(err)
	}
	ref := a.(*Proxy)
	if ref != b.(*Proxy) {
		t.Fatal("repeated references must share one proxy")
	}
	if ref.Mode() != instance.ModeBorrowed || ref.Refs() != 2 {
		t.Errorf("mode = %s, refs = %d", ref.Mode(), ref.Refs())
	}

	if _, err := ref.Call(ctx, "set_x", 9); err != nil {
		t.Fatal(err)
	}
	if got := h.Payload().(*holder).pt.x; got != 9 {
		t.Errorf("mutation through reference not visible: x = %d", got)
	}

	c, err := h.Call(ctx, "pt_copy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.(*Proxy).Call(ctx, "set_x", 1); err != nil {
		t.Fatal(err)
	}
	if got := h.Payload().(*holder).pt.x; got != 9 {
		t.Errorf("mutation through copy leaked: x = %d", got)
	}
	_ = c.(*Proxy).Release()

	_ = ref.Release()
	_ = ref.Release()
	if ref.Live() {
		t.Fatal("reference should be released")
	}
	if drops != 0 {
		t.Error("borrowed storage must not be dropped")
	}
}

func TestReturnPolicies_NotCopyable(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	n, err := rt.New(ctx, "Nocopy")
	if err != nil {
		t.Fatal(err)
	}
	defer n.Release()

	_, err = n.Call(ctx, "again")
	if !errors.Is(err, bridgeerrors.ErrNotCopyable) {
		t.Fatalf("expected not copyable, got %v", err)
	}
	if rt.Count() != 1 {
		t.Errorf("count = %d, failed copy must not register", rt.Count())
	}
}

func TestReturnPolicies_Shared(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	h, err := rt.New(ctx, "Holder")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	share := h.Payload().(*holder).inner

	v, err := h.Call(ctx, "inner")
	if err != nil {
		t.Fatal(err)
	}
	sp := v.(*Proxy)
	if sp.Mode() != instance.ModeShared || sp.Shared() != share {
		t.Fatalf("mode = %s, share = %p", sp.Mode(), sp.Shared())
	}
	if share.Refs() != 2 {
		t.Errorf("share refs = %d, want 2", share.Refs())
	}

	again, err := h.Call(ctx, "inner")
	if err != nil {
		t.Fatal(err)
	}
	if again.(*Proxy) != sp {
		t.Error("shared results must reuse the proxy")
	}

	if _, err := sp.Call(ctx, "set_x", 4); err != nil {
		t.Fatal(err)
	}
	if got := share.Value().(*point).x; got != 4 {
		t.Errorf("mutation through share not visible: x = %d", got)
	}

	_ = sp.Release()
	_ = sp.Release()
	if share.Refs() != 1 {
		t.Errorf("share refs = %d after releasing the proxy, want 1", share.Refs())
	}
}

func TestRuntime_ProxyFor(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	p, err := rt.New(ctx, "Point")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	got, err := rt.ProxyFor(p.Payload(), "Point")
	if err != nil {
		t.Fatal(err)
	}
	if got != p || p.Refs() != 2 {
		t.Fatalf("ProxyFor returned %v with refs %d", got, p.Refs())
	}
	_ = got.Release()

	if _, err := rt.ProxyFor(&point{}, "Point"); !errors.Is(err, bridgeerrors.ErrNotFound) {
		t.Errorf("expected not found for unwrapped storage, got %v", err)
	}
}

func TestRuntime_DumpAndSites(t *testing.T) {
	ctx := context.Background()
	rt := New(&Config{Table: instance.NewTable(), TrackSites: true})
	registerFixtures(t, rt, nil)

	p, err := rt.New(ctx, "Point")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	dump := rt.Dump()
	for _, want := range []string{"Point", "mode=owned-copy", "refs=1", "site=new@", "runtime_test.go", "held=[Point]"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
	if rt.TypesCount() != 4 {
		t.Errorf("TypesCount = %d", rt.TypesCount())
	}
}
