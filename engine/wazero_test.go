package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	bridgeerrors "github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/internal/wasmfixture"
)

type fakeReceiver struct {
	id uint64
}

func (r fakeReceiver) ID() uint64 { return r.id }

func (r fakeReceiver) Class() *descriptor.Class { return nil }

func (r fakeReceiver) Value() any { return nil }

func (r fakeReceiver) Call(context.Context, string, ...any) (any, error) {
	return nil, nil
}

func newEngine(t *testing.T, dispatch Dispatcher) (*WazeroEngine, *WazeroModule) {
	t.Helper()
	ctx := context.Background()
	e, err := NewWazeroEngine(ctx, &Config{MemoryLimitPages: 16}, dispatch)
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })

	m, err := e.LoadModule(ctx, "counter", wasmfixture.Counter, wasmfixture.CounterSlots)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	return e, m
}

func TestWazeroModule_Func(t *testing.T) {
	ctx := context.Background()
	_, m := newEngine(t, nil)

	t.Run("no params", func(t *testing.T) {
		fn, err := m.Func("get_one_int", nil, wit.S32{})
		if err != nil {
			t.Fatal(err)
		}
		got, err := fn(ctx, fakeReceiver{id: 1}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != int32(1) {
			t.Fatalf("get_one_int = %#v, want int32(1)", got)
		}
	})

	t.Run("params are coerced", func(t *testing.T) {
		fn, err := m.Func("add", []wit.Type{wit.S32{}, wit.S32{}}, wit.S32{})
		if err != nil {
			t.Fatal(err)
		}
		got, err := fn(ctx, fakeReceiver{id: 1}, []any{2, int64(-7)})
		if err != nil {
			t.Fatal(err)
		}
		if got != int32(-5) {
			t.Fatalf("add = %#v, want int32(-5)", got)
		}

		if _, err := fn(ctx, fakeReceiver{id: 1}, []any{1}); !errors.Is(err, bridgeerrors.ErrInvalidInput) {
			t.Errorf("arity mismatch: expected invalid input, got %v", err)
		}
		if _, err := fn(ctx, fakeReceiver{id: 1}, []any{"1", 2}); !errors.Is(err, bridgeerrors.ErrTypeMismatch) {
			t.Errorf("bad argument: expected type mismatch, got %v", err)
		}
	})
}

func TestWazeroModule_FuncSignature(t *testing.T) {
	_, m := newEngine(t, nil)

	tests := []struct {
		name     string
		export   string
		params   []wit.Type
		result   wit.Type
		sentinel *bridgeerrors.Error
	}{
		{"missing export", "nope", nil, wit.S32{}, bridgeerrors.ErrNotFound},
		{"missing params", "add", nil, wit.S32{}, bridgeerrors.ErrTypeMismatch},
		{"wrong param type", "add", []wit.Type{wit.S64{}, wit.S32{}}, wit.S32{}, bridgeerrors.ErrTypeMismatch},
		{"undeclared result", "get_one_int", nil, nil, bridgeerrors.ErrTypeMismatch},
		{"wrong result", "get_one_int", nil, wit.F64{}, bridgeerrors.ErrTypeMismatch},
		{"string param", "add", []wit.Type{wit.String{}, wit.S32{}}, wit.S32{}, bridgeerrors.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Func(tt.export, tt.params, tt.result)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %s, got %v", tt.sentinel.Kind, err)
			}
		})
	}
}

func TestWazeroEngine_Callback(t *testing.T) {
	ctx := context.Background()

	type call struct {
		self   uint64
		method string
	}
	var calls []call
	_, m := newEngine(t, func(_ context.Context, self uint64, method string) (any, error) {
		calls = append(calls, call{self, method})
		if self == 99 {
			return nil, bridgeerrors.AbstractMethod("WasmCounter", method)
		}
		return 21, nil
	})

	fn, err := m.Func("twice_value", nil, wit.S32{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := fn(ctx, fakeReceiver{id: 7}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(42) {
		t.Fatalf("twice_value = %#v, want int32(42)", got)
	}
	if want := []call{{7, "value"}}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("dispatcher calls = %v, want %v", calls, want)
	}

	_, err = fn(ctx, fakeReceiver{id: 99}, nil)
	if !errors.Is(err, bridgeerrors.ErrAbstractMethod) {
		t.Fatalf("dispatcher error should surface from the export call, got %v", err)
	}
}

func TestWazeroModule_Trap(t *testing.T) {
	_, m := newEngine(t, nil)
	fn, err := m.Func("trap", nil, wit.S32{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = fn(context.Background(), fakeReceiver{id: 1}, nil)
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseDispatch, Kind: bridgeerrors.KindTrap}) {
		t.Fatalf("expected dispatch trap, got %v", err)
	}
	var be *bridgeerrors.Error
	if !errors.As(err, &be) || be.Cause == nil || be.Method != "counter.trap" {
		t.Errorf("trap should wrap the wazero error, got %#v", be)
	}
}

func TestWazeroEngine_NoDispatcher(t *testing.T) {
	_, m := newEngine(t, nil)
	fn, err := m.Func("twice_value", nil, wit.S32{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(context.Background(), fakeReceiver{id: 1}, nil); !errors.Is(err, bridgeerrors.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestWazeroEngine_LoadModule(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t, nil)

	if got, ok := e.Module("counter"); !ok || got != m {
		t.Fatal("Module should return the loaded module")
	}
	if got := m.ExportNames(); !reflect.DeepEqual(got, []string{"add", "get_one_int", "trap", "twice_value"}) {
		t.Errorf("ExportNames = %v", got)
	}
	if got := m.Slots(); !reflect.DeepEqual(got, []string{"value"}) {
		t.Errorf("Slots = %v", got)
	}

	if _, err := e.LoadModule(ctx, "counter", wasmfixture.Counter, nil); !errors.Is(err, bridgeerrors.ErrDuplicateRegistration) {
		t.Errorf("duplicate name: expected duplicate registration, got %v", err)
	}
	if _, err := e.LoadModule(ctx, HostModule, wasmfixture.Counter, nil); !errors.Is(err, bridgeerrors.ErrInvalidInput) {
		t.Errorf("reserved name: expected invalid input, got %v", err)
	}
	_, err := e.LoadModule(ctx, "garbage", []byte{0x00, 0x61, 0x73}, nil)
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseLoad, Kind: bridgeerrors.KindInvalidData}) {
		t.Errorf("bad bytes: expected load error, got %v", err)
	}

	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Module("counter"); ok {
		t.Error("closed module should be forgotten")
	}
}
