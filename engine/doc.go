// Package engine runs native method bodies compiled to WebAssembly.
//
// This package wraps wazero. A WazeroEngine owns one wazero runtime and
// the objbridge host module; WazeroModule wraps an instantiated core module
// whose exports are bound as method bodies with WazeroModule.Func.
//
// # Calling convention
//
// Every bound export receives the receiver identity as its first parameter,
// followed by one core value per declared WIT parameter:
//
//	WIT Type            Core Type
//	──────────────────────────────
//	bool, s8-u32, char  i32
//	s64, u64            i64
//	f32                 f32
//	f64                 f64
//
// # Callbacks
//
// Guest code calls back into the bridge through imports of the objbridge
// module:
//
//	invoke_i32(self i64, slot i32) -> i32
//	invoke_i64(self i64, slot i32) -> i64
//
// slot indexes the slot table passed to LoadModule. The engine forwards the
// call to its Dispatcher, which performs a full virtual dispatch, so guest
// code observes host overrides of abstract methods.
package engine
