// Package objbridge exposes native class hierarchies to Go as proxy objects
// with identity, ownership tracking and virtual dispatch.
//
// Native classes are described once in a registry, linearized with C3 and
// compiled into per-class dispatch tables. Go code then constructs and calls
// them through proxies, defines subclasses with host-side method overrides,
// and those overrides are observed by native code that calls the methods
// virtually, including method bodies compiled to WebAssembly.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	objbridge/           Root package with version information
//	├── descriptor/      Class descriptors, slots, policies and dispatch tables
//	├── linearize/       C3 method resolution order
//	├── instance/        Instance table: live objects, refcounts, identity
//	├── runtime/         Proxies, construction, dispatch and host classes
//	├── engine/          wazero integration for WebAssembly method bodies
//	├── manifest/        TOML binding manifests
//	├── errors/          Structured error types for debugging
//	└── cmd/bridgectl/   Command line and interactive explorer
//
// # Quick Start
//
// Register a native class and call it through a proxy:
//
//	rt := runtime.New(nil)
//	defer rt.Close(ctx)
//
//	_, err := rt.Register(descriptor.ClassSpec{
//	    ID:   "Greeter",
//	    Type: reflect.TypeOf((*Greeter)(nil)),
//	    New:  newGreeter,
//	    Slots: []descriptor.Slot{
//	        descriptor.Concrete("hello", greeterHello).Returns(wit.String{}),
//	        descriptor.Abstract("name"),
//	    },
//	})
//
// Subclass it from Go and fill in the abstract method:
//
//	_, err = rt.DefineClass(runtime.HostClass{
//	    Name:    "World",
//	    Parents: []string{"Greeter"},
//	    Methods: map[string]runtime.Method{
//	        "name": func(ctx context.Context, self *runtime.Proxy, args []any) (any, error) {
//	            return "world", nil
//	        },
//	    },
//	})
//
//	p, err := rt.New(ctx, "World")
//	defer p.Release()
//	msg, err := p.Call(ctx, "hello") // native hello calls name virtually
//
// # Ownership
//
// Every proxy is recorded in an instance table with one of three modes:
// owned-copy (the proxy owns its storage), shared (the proxy holds one share
// of a refcounted value) and borrowed (the storage is owned elsewhere). See
// the runtime package for the rules that decide which mode a returned value
// gets.
package objbridge

// Version is the module version reported by bridgectl.
const Version = "0.1.0"
