package runtime

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	bridgeerrors "github.com/wippyai/objbridge/errors"
)

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"X", "x"},
		{"ID", "id"},
		{"SayHello", "say_hello"},
		{"AbstractMethod", "abstract_method"},
		{"GetHTTPCode", "get_http_code"},
		{"ParseURL", "parse_url"},
		{"already_snake", "already_snake"},
		{"Value2", "value2"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type square struct {
	inits int
}

func (s *square) Init(ctx context.Context, self *Proxy) error {
	s.inits++
	return nil
}

func (s *square) Area(self *Proxy) int32 { return 9 }

func (s *square) Scale(factor int32) (int32, error) {
	if factor == 0 {
		return 0, errors.New("zero factor")
	}
	return 3 * factor, nil
}

func (s *square) Label(ctx context.Context, parts ...string) string {
	out := "sq"
	for _, p := range parts {
		out += ":" + p
	}
	return out
}

func (s *square) Touch() {}

func TestDefineClassFrom(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	impl := &square{}
	cls, err := rt.DefineClassFrom("GoSquare", []string{"Shape"}, impl)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"area", "scale", "label", "touch"} {
		if !cls.HasOverride(m) {
			t.Errorf("missing override %q", m)
		}
	}
	if cls.HasOverride("init") {
		t.Error("Init must become the initializer, not a method")
	}

	p, err := rt.New(ctx, "GoSquare")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	if impl.inits != 1 {
		t.Errorf("inits = %d", impl.inits)
	}

	if v, err := p.Call(ctx, "describe"); err != nil || v != "area=9" {
		t.Errorf("describe = %v, %v", v, err)
	}
	if v, err := p.Call(ctx, "scale", 4); err != nil || v != int32(12) {
		t.Errorf("scale = %v, %v", v, err)
	}
	if _, err := p.Call(ctx, "scale", 0); err == nil || err.Error() != "zero factor" {
		t.Errorf("scale error = %v", err)
	}
	if v, err := p.Call(ctx, "label", "a", "b"); err != nil || v != "sq:a:b" {
		t.Errorf("label = %v, %v", v, err)
	}
	if v, err := p.Call(ctx, "touch"); err != nil || v != nil {
		t.Errorf("touch = %v, %v", v, err)
	}

	tests := []struct {
		name string
		args []any
		kind bridgeerrors.Kind
	}{
		{"too few", nil, bridgeerrors.KindInvalidInput},
		{"too many", []any{1, 2}, bridgeerrors.KindInvalidInput},
		{"wrong type", []any{"x"}, bridgeerrors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Call(ctx, "scale", tt.args...)
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Kind != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

type badResults struct{}

func (badResults) Pair() (int, int) { return 1, 2 }

func TestDefineClassFrom_Errors(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.DefineClassFrom("Nil", nil, nil); !errors.Is(err, bridgeerrors.ErrInvalidInput) {
		t.Errorf("nil implementation: %v", err)
	}
	if _, err := rt.DefineClassFrom("Bad", nil, badResults{}); !errors.Is(err, bridgeerrors.ErrInvalidInput) {
		t.Errorf("bad result signature: %v", err)
	}
	if rt.TypesCount() != 0 {
		t.Errorf("failed definitions registered %d classes", rt.TypesCount())
	}
}

func TestDefineClass_NilMethod(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.DefineClass(HostClass{Name: "Holey", Methods: map[string]Method{"m": nil}})
	if !errors.Is(err, bridgeerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestConvertValue_Numbers(t *testing.T) {
	tests := []struct {
		in      any
		want    any
		to      reflect.Type
		name    string
		wantErr bool
	}{
		{name: "int to int32", in: 7, to: reflect.TypeOf(int32(0)), want: int32(7)},
		{name: "whole float to int32", in: 2.0, to: reflect.TypeOf(int32(0)), want: int32(2)},
		{name: "int to float64", in: 3, to: reflect.TypeOf(float64(0)), want: float64(3)},
		{name: "fractional float", in: 1.5, to: reflect.TypeOf(int32(0)), wantErr: true},
		{name: "nan", in: math.NaN(), to: reflect.TypeOf(int64(0)), wantErr: true},
		{name: "float overflow", in: 1e10, to: reflect.TypeOf(int32(0)), wantErr: true},
		{name: "negative float to unsigned", in: -1.0, to: reflect.TypeOf(uint8(0)), wantErr: true},
		{name: "int overflow", in: 300, to: reflect.TypeOf(int8(0)), wantErr: true},
		{name: "negative to unsigned", in: -1, to: reflect.TypeOf(uint32(0)), wantErr: true},
		{name: "unsigned overflow", in: uint64(1 << 40), to: reflect.TypeOf(int32(0)), wantErr: true},
		{name: "unsigned fits", in: uint16(9), to: reflect.TypeOf(int64(0)), want: int64(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertValue(tt.in, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Interface() != tt.want {
				t.Errorf("got %#v, want %#v", got.Interface(), tt.want)
			}
		})
	}
}

func TestDefineClassFrom_RejectsFractionalArgument(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	registerFixtures(t, rt, nil)

	if _, err := rt.DefineClassFrom("HalfSquare", []string{"Shape"}, &square{}); err != nil {
		t.Fatal(err)
	}
	p, err := rt.New(ctx, "HalfSquare")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	if v, err := p.Call(ctx, "scale", 2.0); err != nil || v != int32(6) {
		t.Fatalf("scale(2.0) = %v, %v", v, err)
	}
	if _, err := p.Call(ctx, "scale", 1.5); !errors.Is(err, bridgeerrors.ErrTypeMismatch) {
		t.Errorf("scale(1.5): expected type mismatch, got %v", err)
	}
}
