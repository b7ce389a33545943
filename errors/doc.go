// Package errors provides structured error types for the objbridge runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes context: class id, method name, argument
// path, Go/WIT type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
//		Class("TestParameterValues").
//		Method("take_one_int").
//		Path("arg0").
//		GoType("string").
//		WitType("s32").
//		Build()
//
// Or use convenience constructors for the binding taxonomy:
//
//	err := errors.DuplicateRegistration("DummyA")
//	err := errors.AbstractMethod("Greeter", "abstract_method")
//
// Every kind has an exported sentinel without a phase, so callers can test
// for a category regardless of where it was raised:
//
//	if errors.Is(err, bridgeerrors.ErrInstantiation) { ... }
package errors
