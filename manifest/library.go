package manifest

import (
	"reflect"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/runtime"
)

// Payload binds a native class to its Go storage.
type Payload struct {
	Type reflect.Type
	New  descriptor.Constructor
	Copy descriptor.Copier
}

// Library holds the Go implementations a manifest refers to by name.
type Library struct {
	// Payloads is keyed by the class payload name (the class id by default).
	Payloads map[string]Payload
	Funcs    map[string]descriptor.NativeFunc
	Methods  map[string]runtime.Method
	Inits    map[string]runtime.Initializer
	// Modules supplies module bytes for [[module]] entries without a path.
	Modules map[string][]byte
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		Payloads: make(map[string]Payload),
		Funcs:    make(map[string]descriptor.NativeFunc),
		Methods:  make(map[string]runtime.Method),
		Inits:    make(map[string]runtime.Initializer),
		Modules:  make(map[string][]byte),
	}
}

// Func adds a native function and returns l.
func (l *Library) Func(symbol string, fn descriptor.NativeFunc) *Library {
	l.Funcs[symbol] = fn
	return l
}

// Method adds a host method and returns l.
func (l *Library) Method(symbol string, m runtime.Method) *Library {
	l.Methods[symbol] = m
	return l
}

// Payload adds a payload binding and returns l.
func (l *Library) Payload(name string, p Payload) *Library {
	l.Payloads[name] = p
	return l
}
