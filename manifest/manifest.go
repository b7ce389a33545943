// Package manifest handles declarative class registration from TOML files.
//
// A manifest lists WebAssembly modules and classes in registration order:
//
//	[runtime]
//	log_level = "info"
//
//	[[module]]
//	name = "counter"
//	path = "counter.wasm"
//	slots = ["value"]
//
//	[[class]]
//	id = "Counter"
//	abstract = ["value"]
//
//	[[class.method]]
//	name = "twice_value"
//	symbol = "wasm:counter.twice_value"
//	result = "s32"
//
// Method symbols name entries of a Library, or module exports when prefixed
// with "wasm:". Parameter and result types are WIT primitive names or class
// references written as "@ClassID".
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/runtime"
)

// WasmPrefix marks a method symbol bound to a module export.
const WasmPrefix = "wasm:"

// Manifest is a parsed class manifest.
type Manifest struct {
	Runtime runtime.Settings `toml:"runtime"`
	Modules []Module         `toml:"module"`
	Classes []Class          `toml:"class"`

	// Dir is the directory containing the manifest file (set at load time).
	// Relative module paths resolve against it.
	Dir string `toml:"-"`
}

// Module declares a WebAssembly module whose exports serve method bodies.
type Module struct {
	Name string `toml:"name"`
	// Path of the .wasm file. Empty means the Library supplies the bytes.
	Path  string   `toml:"path"`
	Slots []string `toml:"slots"`
}

// Class declares one class.
type Class struct {
	ID       string   `toml:"id"`
	Doc      string   `toml:"doc"`
	Origin   string   `toml:"origin"`
	Payload  string   `toml:"payload"`
	Init     string   `toml:"init"`
	Parents  []string `toml:"parents"`
	Abstract []string `toml:"abstract"`
	Methods  []Method `toml:"method"`
}

// Method declares one concrete method slot, or one override of a host class.
type Method struct {
	Name     string   `toml:"name"`
	Symbol   string   `toml:"symbol"`
	Result   string   `toml:"result"`
	Policy   string   `toml:"policy"`
	Doc      string   `toml:"doc"`
	Params   []string `toml:"params"`
	Variadic bool     `toml:"variadic"`
}

// Host reports whether the class is defined on the host side.
func (c *Class) Host() bool { return c.Origin == "host" }

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read manifest "+path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Load("resolve manifest directory", err)
	}
	return m, nil
}

// Parse decodes and validates manifest data.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, errors.ParseFailed("manifest", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Value(undecoded[0].String()).
			Detail("unknown manifest key").
			Build()
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Config builds the runtime configuration from the [runtime] table.
func (m *Manifest) Config() (*runtime.Config, error) {
	return m.Runtime.Config()
}

func (m *Manifest) validate() error {
	modules := make(map[string]bool, len(m.Modules))
	for _, mod := range m.Modules {
		if mod.Name == "" {
			return invalid("", "", "module without a name")
		}
		if modules[mod.Name] {
			return invalid("", "", "duplicate module "+mod.Name)
		}
		modules[mod.Name] = true
	}

	for i := range m.Classes {
		c := &m.Classes[i]
		if c.ID == "" {
			return invalid("", "", "class without an id")
		}
		switch c.Origin {
		case "", "native", "host":
		default:
			return invalid(c.ID, "", "unknown origin "+c.Origin)
		}
		if c.Init != "" && !c.Host() {
			return invalid(c.ID, "", "init is only allowed on host classes")
		}
		for _, meth := range c.Methods {
			if err := m.validateMethod(c, meth, modules); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manifest) validateMethod(c *Class, meth Method, modules map[string]bool) error {
	if meth.Name == "" {
		return invalid(c.ID, "", "method without a name")
	}
	if meth.Symbol == "" {
		return invalid(c.ID, meth.Name, "method without a symbol")
	}
	if strings.HasPrefix(meth.Symbol, WasmPrefix) {
		if c.Host() {
			return invalid(c.ID, meth.Name, "host methods cannot be module exports")
		}
		mod, _, ok := splitWasmSymbol(meth.Symbol)
		if !ok {
			return invalid(c.ID, meth.Name, "malformed symbol "+meth.Symbol)
		}
		if !modules[mod] {
			return errors.New(errors.PhaseParse, errors.KindNotFound).
				Class(c.ID).
				Method(meth.Name).
				Detail("module %s is not declared", mod).
				Build()
		}
	}
	if _, err := slotOf(c.ID, meth); err != nil {
		return err
	}
	return nil
}

// slotOf builds the slot declaration of a method, without its body.
func slotOf(classID string, meth Method) (descriptor.Slot, error) {
	slot := descriptor.Slot{
		Name:     meth.Name,
		Kind:     descriptor.SlotConcrete,
		Doc:      meth.Doc,
		Variadic: meth.Variadic,
	}

	for i, spec := range meth.Params {
		p, err := parseParam(spec)
		if err != nil {
			return slot, withContext(err, classID, meth.Name, "params", spec, i)
		}
		slot.Params = append(slot.Params, p)
	}

	policy, ok := descriptor.ParsePolicy(meth.Policy)
	if !ok {
		return slot, invalid(classID, meth.Name, "unknown policy "+meth.Policy)
	}
	switch {
	case strings.HasPrefix(meth.Result, "@"):
		slot.ResultClass = meth.Result[1:]
		slot.Policy = policy
	case meth.Result != "":
		t, ok := descriptor.ParseType(meth.Result)
		if !ok {
			return slot, errors.New(errors.PhaseParse, errors.KindInvalidInput).
				Class(classID).
				Method(meth.Name).
				WitType(meth.Result).
				Detail("unknown result type").
				Build()
		}
		slot.Result = t
		fallthrough
	default:
		if meth.Policy != "" {
			return slot, invalid(classID, meth.Name, "policy requires a class result")
		}
	}
	return slot, nil
}

// parseParam parses "type" or "name: type".
func parseParam(spec string) (descriptor.Param, error) {
	name, typ, found := strings.Cut(spec, ":")
	if !found {
		typ, name = name, ""
	}
	name = strings.TrimSpace(name)
	typ = strings.TrimSpace(typ)

	if strings.HasPrefix(typ, "@") && len(typ) > 1 {
		return descriptor.ClassArg(name, typ[1:]), nil
	}
	t, ok := descriptor.ParseType(typ)
	if !ok {
		return descriptor.Param{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			WitType(typ).
			Detail("unknown parameter type").
			Build()
	}
	return descriptor.Arg(name, t), nil
}

func withContext(err error, classID, method, field, value string, index int) error {
	if be, ok := err.(*errors.Error); ok {
		be.Class = classID
		be.Method = method
		be.Path = []string{field, value}
		be.Value = index
	}
	return err
}

func splitWasmSymbol(symbol string) (module, export string, ok bool) {
	module, export, ok = strings.Cut(strings.TrimPrefix(symbol, WasmPrefix), ".")
	return module, export, ok && module != "" && export != ""
}

func invalid(classID, method, detail string) *errors.Error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Class(classID).
		Method(method).
		Detail("%s", detail).
		Build()
}
