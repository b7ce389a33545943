// Package wasmfixture holds small hand-assembled WebAssembly modules used as
// native method bodies in tests and in the reference binding.
package wasmfixture

// CounterSlots is the slot table of Counter: index 0 names the method
// twice_value calls back through objbridge.invoke_i32.
var CounterSlots = []string{"value"}

// Counter is the binary form of:
//
//	(module
//	  (type (func (param i64) (result i32)))
//	  (type (func (param i64 i32) (result i32)))
//	  (type (func (param i64 i32 i32) (result i32)))
//	  (import "objbridge" "invoke_i32" (func $invoke (type 1)))
//	  (func (export "get_one_int") (type 0)
//	    i32.const 1)
//	  (func (export "twice_value") (type 0)
//	    local.get 0
//	    i32.const 0
//	    call $invoke
//	    i32.const 2
//	    i32.mul)
//	  (func (export "add") (type 2)
//	    local.get 1
//	    local.get 2
//	    i32.add)
//	  (func (export "trap") (type 0)
//	    unreachable))
var Counter = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

	// type section
	0x01, 0x13, 0x03,
	0x60, 0x01, 0x7e, 0x01, 0x7f,
	0x60, 0x02, 0x7e, 0x7f, 0x01, 0x7f,
	0x60, 0x03, 0x7e, 0x7f, 0x7f, 0x01, 0x7f,

	// import section
	0x02, 0x18, 0x01,
	0x09, 'o', 'b', 'j', 'b', 'r', 'i', 'd', 'g', 'e',
	0x0a, 'i', 'n', 'v', 'o', 'k', 'e', '_', 'i', '3', '2',
	0x00, 0x01,

	// function section
	0x03, 0x05, 0x04, 0x00, 0x00, 0x02, 0x00,

	// export section
	0x07, 0x2a, 0x04,
	0x0b, 'g', 'e', 't', '_', 'o', 'n', 'e', '_', 'i', 'n', 't', 0x00, 0x01,
	0x0b, 't', 'w', 'i', 'c', 'e', '_', 'v', 'a', 'l', 'u', 'e', 0x00, 0x02,
	0x03, 'a', 'd', 'd', 0x00, 0x03,
	0x04, 't', 'r', 'a', 'p', 0x00, 0x04,

	// code section
	0x0a, 0x1e, 0x04,
	0x04, 0x00, 0x41, 0x01, 0x0b,
	0x0b, 0x00, 0x20, 0x00, 0x41, 0x00, 0x10, 0x00, 0x41, 0x02, 0x6c, 0x0b,
	0x07, 0x00, 0x20, 0x01, 0x20, 0x02, 0x6a, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
}
