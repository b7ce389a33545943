package main

import (
	"context"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		want    any
		typ     wit.Type
		name    string
		value   string
		wantErr bool
	}{
		{name: "string", typ: wit.String{}, value: "hi", want: "hi"},
		{name: "untyped", typ: nil, value: "hi", want: "hi"},
		{name: "bool", typ: wit.Bool{}, value: "true", want: true},
		{name: "s32", typ: wit.S32{}, value: "-7", want: int32(-7)},
		{name: "u8", typ: wit.U8{}, value: "255", want: uint8(255)},
		{name: "u8 overflow", typ: wit.U8{}, value: "256", wantErr: true},
		{name: "s64", typ: wit.S64{}, value: "1", want: int64(1)},
		{name: "f64", typ: wit.F64{}, value: "1.5", want: 1.5},
		{name: "char", typ: wit.Char{}, value: "x", want: 'x'},
		{name: "char too long", typ: wit.Char{}, value: "xy", wantErr: true},
		{name: "not a number", typ: wit.S32{}, value: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArg(tt.value, tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	slot := descriptor.Concrete("take", nil).
		WithParams(descriptor.Arg("n", wit.S32{}), descriptor.ClassArg("other", "Point")).
		ReturnsClass("Point", descriptor.PolicyCopy)
	want := "take(n: s32, other: @Point) -> @Point [copy]"
	if got := signature("take", &slot); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := signature("host_only", nil); got != "host_only(...)" {
		t.Errorf("got %q", got)
	}
}

func TestSession_BuiltinBinding(t *testing.T) {
	ctx := context.Background()
	s, err := openSession(ctx, "", "")
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer func() { _ = s.close(ctx) }()

	params, err := s.construct(ctx, "TestParameterValues")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	res, err := s.call(ctx, params, "take_one_int", []string{"1"})
	if err != nil {
		t.Fatalf("take_one_int: %v", err)
	}
	if res != true {
		t.Errorf("take_one_int(1) = %v", res)
	}

	nc, err := s.construct(ctx, "Nocopyable")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	res, err = s.call(ctx, params, "take_nocopyable_ref", []string{"#" + nc.ID().String()})
	if err != nil {
		t.Fatalf("take_nocopyable_ref: %v", err)
	}
	if res != true {
		t.Errorf("take_nocopyable_ref = %v", res)
	}
	foo, err := s.call(ctx, nc, "foo", nil)
	if err != nil {
		t.Fatalf("foo: %v", err)
	}
	if foo != "bar" {
		t.Errorf("foo = %v, want bar", foo)
	}

	if _, err := s.call(ctx, params, "take_one_int", nil); err == nil {
		t.Error("expected arity error")
	}
	if _, err := s.call(ctx, params, "take_nocopyable_ref", []string{"#999"}); err == nil {
		t.Error("expected unknown instance error")
	}

	if err := s.release(nc); err != nil {
		t.Fatalf("release: %v", err)
	}
	if s.rt.Count() != 1 {
		t.Errorf("count = %d, want 1", s.rt.Count())
	}
}
