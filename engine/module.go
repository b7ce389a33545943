package engine

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
)

// WazeroModule is an instantiated core module.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	inst     api.Module
	name     string
	slots    []string
}

// Name returns the module name.
func (m *WazeroModule) Name() string { return m.name }

// Slots returns the callback slot table.
func (m *WazeroModule) Slots() []string {
	return append([]string(nil), m.slots...)
}

// ExportNames returns the exported function names, sorted.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Func binds an export as a native method body. The export takes the
// receiver identity as its first i64 parameter followed by one core value
// per declared parameter, and returns at most one value.
func (m *WazeroModule) Func(export string, params []wit.Type, result wit.Type) (descriptor.NativeFunc, error) {
	fn := m.inst.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", m.name+"."+export)
	}

	def := fn.Definition()
	want := make([]api.ValueType, 0, len(params)+1)
	want = append(want, api.ValueTypeI64)
	for _, p := range params {
		vt, ok := coreType(p)
		if !ok {
			return nil, signatureError(m.name, export, "unsupported parameter type "+descriptor.TypeName(p))
		}
		want = append(want, vt)
	}
	if !sameTypes(def.ParamTypes(), want) {
		return nil, signatureError(m.name, export, "parameter types do not match the declaration")
	}

	results := def.ResultTypes()
	switch {
	case result == nil && len(results) != 0:
		return nil, signatureError(m.name, export, "export returns a value that is not declared")
	case result != nil:
		vt, ok := coreType(result)
		if !ok || len(results) != 1 || results[0] != vt {
			return nil, signatureError(m.name, export, "result type does not match the declaration")
		}
	}

	name := m.name + "." + export
	return func(ctx context.Context, self descriptor.Receiver, args []any) (any, error) {
		if len(args) != len(params) {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Method(name).
				Detail("expected %d arguments, got %d", len(params), len(args)).
				Build()
		}
		stack := make([]uint64, 0, len(args)+1)
		stack = append(stack, self.ID())
		for i, a := range args {
			v, err := encodeValue(params[i], a)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		}

		out, err := fn.Call(ctx, stack...)
		if err != nil {
			// Errors raised by callbacks come back wrapped by wazero.
			var be *errors.Error
			if stderrors.As(err, &be) {
				return nil, be
			}
			trap := errors.Wrap(errors.PhaseDispatch, errors.KindTrap, err, "guest trapped")
			trap.Method = name
			return nil, trap
		}
		if result == nil {
			return nil, nil
		}
		return decodeValue(result, out[0]), nil
	}, nil
}

// Close closes the instance and forgets the module.
func (m *WazeroModule) Close(ctx context.Context) error {
	m.engine.mu.Lock()
	delete(m.engine.modules, m.name)
	m.engine.mu.Unlock()

	if err := m.inst.Close(ctx); err != nil {
		return err
	}
	return m.compiled.Close(ctx)
}

func coreType(t wit.Type) (api.ValueType, bool) {
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return api.ValueTypeI32, true
	case wit.S64, wit.U64:
		return api.ValueTypeI64, true
	case wit.F32:
		return api.ValueTypeF32, true
	case wit.F64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func encodeValue(t wit.Type, v any) (uint64, error) {
	c, err := descriptor.Coerce(t, v)
	if err != nil {
		return 0, err
	}
	switch x := c.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int8:
		return api.EncodeI32(int32(x)), nil
	case uint8:
		return uint64(x), nil
	case int16:
		return api.EncodeI32(int32(x)), nil
	case uint16:
		return uint64(x), nil
	case int32:
		return api.EncodeI32(x), nil
	case uint32:
		return api.EncodeU32(x), nil
	case int64:
		return api.EncodeI64(x), nil
	case uint64:
		return x, nil
	case float32:
		return api.EncodeF32(x), nil
	case float64:
		return api.EncodeF64(x), nil
	}
	return 0, errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
		WitType(descriptor.TypeName(t)).
		Detail("value has no core representation").
		Build()
}

func decodeValue(t wit.Type, raw uint64) any {
	switch t.(type) {
	case wit.Bool:
		return uint32(raw) != 0
	case wit.S8:
		return int8(api.DecodeI32(raw))
	case wit.U8:
		return uint8(raw)
	case wit.S16:
		return int16(api.DecodeI32(raw))
	case wit.U16:
		return uint16(raw)
	case wit.S32:
		return api.DecodeI32(raw)
	case wit.U32:
		return api.DecodeU32(raw)
	case wit.Char:
		return rune(api.DecodeU32(raw))
	case wit.S64:
		return int64(raw)
	case wit.U64:
		return raw
	case wit.F32:
		return api.DecodeF32(raw)
	case wit.F64:
		return api.DecodeF64(raw)
	}
	return raw
}

func int32Result(v any) (any, error) {
	return descriptor.Coerce(wit.S32{}, v)
}

func int64Result(v any) (any, error) {
	return descriptor.Coerce(wit.S64{}, v)
}

func signatureError(module, export, detail string) *errors.Error {
	return errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
		Method(module + "." + export).
		Detail("%s", detail).
		Build()
}
