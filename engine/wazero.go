package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/errors"
)

// HostModule is the import namespace WebAssembly method bodies use to call
// back into the bridge.
const HostModule = "objbridge"

// Dispatcher performs a virtual call on the live instance identified by
// self. The engine calls it when guest code imports objbridge.invoke_*.
type Dispatcher func(ctx context.Context, self uint64, method string) (any, error)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool
}

// WazeroEngine loads WebAssembly modules whose exports serve as native
// method bodies.
type WazeroEngine struct {
	runtime  wazero.Runtime
	dispatch Dispatcher
	modules  map[string]*WazeroModule
	mu       sync.RWMutex
}

// NewWazeroEngine creates an engine and instantiates the objbridge host
// module. dispatch may be nil, in which case guest callbacks fail.
func NewWazeroEngine(ctx context.Context, cfg *Config, dispatch Dispatcher) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	e := &WazeroEngine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		dispatch: dispatch,
		modules:  make(map[string]*WazeroModule),
	}
	if err := e.instantiateHostModule(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *WazeroEngine) instantiateHostModule(ctx context.Context) error {
	builder := e.runtime.NewHostModuleBuilder(HostModule)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			v := e.callback(ctx, mod, stack[0], api.DecodeU32(stack[1]), int32Result)
			stack[0] = api.EncodeI32(v.(int32))
		}), []api.ValueType{api.ValueTypeI64, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("invoke_i32")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			v := e.callback(ctx, mod, stack[0], api.DecodeU32(stack[1]), int64Result)
			stack[0] = uint64(v.(int64))
		}), []api.ValueType{api.ValueTypeI64, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64}).
		Export("invoke_i64")

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Load("instantiate host module", err)
	}
	return nil
}

// callback resolves the slot index against the calling module's slot table
// and re-enters the bridge. Failures panic; wazero turns the panic into the
// error returned by the outer export call.
func (e *WazeroEngine) callback(ctx context.Context, caller api.Module, self uint64, slot uint32, conv func(any) (any, error)) any {
	e.mu.RLock()
	m := e.modules[caller.Name()]
	e.mu.RUnlock()

	if m == nil {
		panic(errors.NotFound(errors.PhaseDispatch, "module", caller.Name()))
	}
	if int(slot) >= len(m.slots) {
		panic(errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Detail("module %s has no slot %d", m.name, slot).
			Build())
	}
	if e.dispatch == nil {
		panic(errors.New(errors.PhaseDispatch, errors.KindNotInitialized).
			Detail("engine has no dispatcher").
			Build())
	}

	method := m.slots[slot]
	Logger().Debug("guest callback",
		zap.String("module", m.name),
		zap.Uint64("self", self),
		zap.String("method", method),
	)

	res, err := e.dispatch(ctx, self, method)
	if err != nil {
		panic(err)
	}
	v, err := conv(res)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadModule compiles and instantiates a core module. slots is the table
// guest code indexes when calling objbridge.invoke_*.
func (e *WazeroEngine) LoadModule(ctx context.Context, name string, wasmBytes []byte, slots []string) (*WazeroModule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" || name == HostModule {
		return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("invalid module name %q", name))
	}
	if _, exists := e.modules[name]; exists {
		return nil, errors.New(errors.PhaseLoad, errors.KindDuplicateRegistration).
			Detail("module %s already loaded", name).
			Build()
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module "+name, err)
	}
	inst, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Load("instantiate module "+name, err)
	}

	m := &WazeroModule{
		engine:   e,
		name:     name,
		compiled: compiled,
		inst:     inst,
		slots:    append([]string(nil), slots...),
	}
	e.modules[name] = m

	Logger().Debug("module loaded",
		zap.String("module", name),
		zap.Strings("slots", slots),
	)
	return m, nil
}

// Module returns a loaded module by name.
func (e *WazeroEngine) Module(name string) (*WazeroModule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.modules[name]
	return m, ok
}

// Close releases the wazero runtime and every module loaded into it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.modules = make(map[string]*WazeroModule)
	e.mu.Unlock()
	return e.runtime.Close(ctx)
}
