// Package runtime provides the high-level API for binding native classes to
// host-side proxies.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt := runtime.New(&runtime.Config{Table: instance.NewTable()})
//	defer rt.Close(ctx)
//
//	// Register a native class
//	_, err := rt.Register(descriptor.ClassSpec{
//	    ID:   "Counter",
//	    Type: reflect.TypeOf((*Counter)(nil)),
//	    New:  func(ctx context.Context, args []any) (any, error) { return &Counter{}, nil },
//	    Slots: []descriptor.Slot{
//	        descriptor.Concrete("incr", incr).Returns(wit.S32{}),
//	    },
//	})
//
//	// Create an instance and call it
//	p, err := rt.New(ctx, "Counter")
//	defer p.Release()
//	n, err := p.Call(ctx, "incr")
//
// # Ownership Modes
//
// Every proxy is registered in an instance.Table with one of three modes:
//
//	owned-copy          - the proxy owns its payload (New, copy and move returns)
//	shared              - the proxy holds one share of a *Shared value
//	borrowed-reference  - the proxy aliases storage owned by native code
//
// Reference and shared returns of storage that is already wrapped give back
// the existing proxy with an extra handle, so identity is preserved.
//
// # Host Classes
//
// Host classes derive from native classes and override their methods,
// including abstract ones. Overrides are reachable from native code through
// the dispatcher:
//
//	rt.DefineClass(runtime.HostClass{
//	    Name:    "Greeter",
//	    Parents: []string{"AbstractGreeter"},
//	    Methods: map[string]runtime.Method{
//	        "abstract_method": func(ctx context.Context, self *runtime.Proxy, args []any) (any, error) {
//	            return "abstract_hello", nil
//	        },
//	    },
//	})
//
// DefineClassFrom builds the same from the exported methods of a Go value,
// converting PascalCase method names to snake_case slot names.
//
// # WebAssembly Bodies
//
// LoadModule instantiates a core module with wazero. Its exports become
// native method bodies through WazeroModule.Func, and the module can call
// back into any slot of its receiver through the objbridge host module.
package runtime
