package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/engine"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/instance"
)

// Runtime binds native classes to host-side proxies.
type Runtime struct {
	reg        *descriptor.Registry
	table      *instance.Table
	engine     *engine.WazeroEngine
	engineCfg  *engine.Config
	log        *zap.Logger
	engineMu   sync.Mutex
	id         uuid.UUID
	trackSites bool
}

// New creates a runtime. cfg may be nil.
func New(cfg *Config) *Runtime {
	if cfg == nil {
		cfg = &Config{}
	}
	rt := &Runtime{
		id:         uuid.New(),
		reg:        cfg.Registry,
		table:      cfg.Table,
		engineCfg:  cfg.Engine,
		log:        cfg.Logger,
		trackSites: cfg.TrackSites,
	}
	if rt.reg == nil {
		rt.reg = descriptor.NewRegistry()
	}
	if rt.table == nil {
		rt.table = instance.Global()
	}
	if rt.log == nil {
		rt.log = Logger()
	}
	rt.log = rt.log.With(zap.String("runtime", rt.id.String()))
	return rt
}

// ID returns the runtime identity carried by its proxies.
func (r *Runtime) ID() uuid.UUID { return r.id }

// Registry returns the class registry.
func (r *Runtime) Registry() *descriptor.Registry { return r.reg }

// Table returns the instance table.
func (r *Runtime) Table() *instance.Table { return r.table }

// Register registers a native class.
func (r *Runtime) Register(spec descriptor.ClassSpec) (*descriptor.Class, error) {
	return r.reg.Register(spec)
}

// Lookup returns a registered class.
func (r *Runtime) Lookup(classID string) (*descriptor.Class, error) {
	return r.reg.Lookup(classID)
}

// Count returns the number of live instances in the runtime's table.
func (r *Runtime) Count() int { return r.table.Count() }

// Dump renders the runtime's instance table.
func (r *Runtime) Dump() string { return r.table.Dump() }

// TypesCount returns the number of registered classes.
func (r *Runtime) TypesCount() int { return r.reg.Len() }

// LoadModule loads a WebAssembly module whose exports can serve as native
// method bodies. The wazero engine is created on first use.
func (r *Runtime) LoadModule(ctx context.Context, name string, wasm []byte, slots []string) (*engine.WazeroModule, error) {
	e, err := r.wasmEngine(ctx)
	if err != nil {
		return nil, err
	}
	return e.LoadModule(ctx, name, wasm, slots)
}

func (r *Runtime) wasmEngine(ctx context.Context) (*engine.WazeroEngine, error) {
	r.engineMu.Lock()
	defer r.engineMu.Unlock()

	if r.engine != nil {
		return r.engine, nil
	}
	e, err := engine.NewWazeroEngine(ctx, r.engineCfg, r.guestDispatch)
	if err != nil {
		return nil, err
	}
	r.engine = e
	return e, nil
}

// guestDispatch serves objbridge.invoke_* callbacks from WebAssembly.
func (r *Runtime) guestDispatch(ctx context.Context, self uint64, method string) (any, error) {
	e, ok := r.table.Get(instance.ID(self))
	if !ok {
		return nil, errors.Released("", self)
	}
	p, ok := e.Value.(*Proxy)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindForeignProxy).
			Detail("instance #%s is not a proxy", instance.ID(self)).
			Build()
	}
	return r.Invoke(ctx, p, method)
}

// Close releases the wazero engine, if one was created.
// Live proxies stay registered.
func (r *Runtime) Close(ctx context.Context) error {
	r.engineMu.Lock()
	defer r.engineMu.Unlock()

	if r.engine == nil {
		return nil
	}
	err := r.engine.Close(ctx)
	r.engine = nil
	return err
}

// ProxyFor returns the live proxy wrapping native storage viewed as
// classID, with an extra handle the caller must release. Native code that
// only holds its own payload uses it to call back through the dispatcher.
func (r *Runtime) ProxyFor(payload any, classID string) (*Proxy, error) {
	cls, err := r.reg.Lookup(classID)
	if err != nil {
		return nil, err
	}
	if p, ok := r.existing(payload, cls); ok {
		return p, nil
	}
	return nil, errors.New(errors.PhaseDispatch, errors.KindNotFound).
		Class(classID).
		GoType(fmt.Sprintf("%T", payload)).
		Detail("no live proxy wraps this value").
		Build()
}

// existing looks up and retains the proxy already bound to storage.
func (r *Runtime) existing(storage any, cls *descriptor.Class) (*Proxy, bool) {
	if !comparableStorage(storage) {
		return nil, false
	}
	e, ok := r.table.Resolve(instance.Key{Storage: storage, Class: cls.Index()})
	if !ok {
		return nil, false
	}
	p, ok := e.Value.(*Proxy)
	if !ok || p.rt != r {
		return nil, false
	}
	if _, ok := r.table.Retain(p.id); !ok {
		return nil, false
	}
	return p, true
}

// site builds the creation tag of an entry.
func (r *Runtime) site(tag string) string {
	if !r.trackSites {
		return tag
	}
	// Skip site, the runtime helper and the exported entry point.
	if _, file, line, ok := goruntime.Caller(3); ok {
		return fmt.Sprintf("%s@%s:%d", tag, file, line)
	}
	return tag
}
