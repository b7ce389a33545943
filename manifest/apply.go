package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/engine"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/runtime"
)

// Apply loads the manifest's modules into rt and registers its classes in
// file order. Registration stops at the first error; classes registered
// before it stay registered.
func (m *Manifest) Apply(ctx context.Context, rt *runtime.Runtime, lib *Library) ([]*descriptor.Class, error) {
	if lib == nil {
		lib = NewLibrary()
	}

	modules := make(map[string]*engine.WazeroModule, len(m.Modules))
	for _, mod := range m.Modules {
		wasm, err := m.moduleBytes(mod, lib)
		if err != nil {
			return nil, err
		}
		loaded, err := rt.LoadModule(ctx, mod.Name, wasm, mod.Slots)
		if err != nil {
			return nil, err
		}
		modules[mod.Name] = loaded
	}

	out := make([]*descriptor.Class, 0, len(m.Classes))
	for i := range m.Classes {
		c := &m.Classes[i]
		var (
			cls *descriptor.Class
			err error
		)
		if c.Host() {
			cls, err = defineHost(rt, c, lib)
		} else {
			cls, err = registerNative(rt, c, lib, modules)
		}
		if err != nil {
			return out, err
		}
		out = append(out, cls)
	}
	return out, nil
}

func (m *Manifest) moduleBytes(mod Module, lib *Library) ([]byte, error) {
	if mod.Path == "" {
		wasm, ok := lib.Modules[mod.Name]
		if !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "module", mod.Name)
		}
		return wasm, nil
	}
	path := mod.Path
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read module "+path, err)
	}
	return wasm, nil
}

func registerNative(rt *runtime.Runtime, c *Class, lib *Library, modules map[string]*engine.WazeroModule) (*descriptor.Class, error) {
	spec := descriptor.ClassSpec{
		ID:      c.ID,
		Doc:     c.Doc,
		Parents: c.Parents,
	}

	key := c.Payload
	if key == "" {
		key = c.ID
	}
	if p, ok := lib.Payloads[key]; ok {
		spec.Type = p.Type
		spec.New = p.New
		spec.Copy = p.Copy
	} else if c.Payload != "" {
		return nil, symbolNotFound(c.ID, "", "payload", c.Payload)
	}

	for _, name := range c.Abstract {
		spec.Slots = append(spec.Slots, descriptor.Abstract(name))
	}
	for _, meth := range c.Methods {
		slot, err := slotOf(c.ID, meth)
		if err != nil {
			return nil, err
		}
		body, err := nativeBody(c.ID, meth, slot, lib, modules)
		if err != nil {
			return nil, err
		}
		slot.Body = body
		spec.Slots = append(spec.Slots, slot)
	}
	return rt.Register(spec)
}

func nativeBody(classID string, meth Method, slot descriptor.Slot, lib *Library, modules map[string]*engine.WazeroModule) (descriptor.NativeFunc, error) {
	if !strings.HasPrefix(meth.Symbol, WasmPrefix) {
		fn, ok := lib.Funcs[meth.Symbol]
		if !ok {
			return nil, symbolNotFound(classID, meth.Name, "symbol", meth.Symbol)
		}
		return fn, nil
	}

	modName, export, _ := splitWasmSymbol(meth.Symbol)
	mod, ok := modules[modName]
	if !ok {
		return nil, symbolNotFound(classID, meth.Name, "module", modName)
	}
	types := make([]wit.Type, 0, len(slot.Params))
	for _, p := range slot.Params {
		if p.Class != "" {
			return nil, invalid(classID, meth.Name, "module exports take primitive parameters only")
		}
		types = append(types, p.Type)
	}
	if slot.ResultClass != "" {
		return nil, invalid(classID, meth.Name, "module exports return primitive results only")
	}
	fn, err := mod.Func(export, types, slot.Result)
	if err != nil {
		if be, ok := err.(*errors.Error); ok {
			be.Class = classID
			be.Method = meth.Name
		}
		return nil, err
	}
	return fn, nil
}

func defineHost(rt *runtime.Runtime, c *Class, lib *Library) (*descriptor.Class, error) {
	hc := runtime.HostClass{
		Name:     c.ID,
		Doc:      c.Doc,
		Parents:  c.Parents,
		Abstract: c.Abstract,
		Methods:  make(map[string]runtime.Method, len(c.Methods)),
	}
	for _, meth := range c.Methods {
		m, ok := lib.Methods[meth.Symbol]
		if !ok {
			return nil, symbolNotFound(c.ID, meth.Name, "symbol", meth.Symbol)
		}
		hc.Methods[meth.Name] = m
	}
	if c.Init != "" {
		init, ok := lib.Inits[c.Init]
		if !ok {
			return nil, symbolNotFound(c.ID, "", "init", c.Init)
		}
		hc.Init = init
	}
	return rt.DefineClass(hc)
}

func symbolNotFound(classID, method, what, name string) *errors.Error {
	return errors.New(errors.PhaseLoad, errors.KindNotFound).
		Class(classID).
		Method(method).
		Value(name).
		Detail("%s %s not found in library", what, name).
		Build()
}
