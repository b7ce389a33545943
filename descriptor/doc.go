// Package descriptor is the type descriptor registry.
//
// A class is registered once with its id, its ordered parents and its method
// slots. Registration validates the declaration, computes the C3
// linearization of the hierarchy and precomputes a dispatch table that maps
// every visible method name to the class that serves it:
//
//	host override   first class in MRO order that overrides the name
//	native body     otherwise the nearest concrete slot
//	abstract        otherwise the nearest abstract declaration
//
// Classes are stored in an arena; parents and MRO entries are arena indices.
// The registry is append-only. Classes with origin OriginHost may receive
// additional overrides after registration through Registry.InstallOverride,
// which rebuilds the tables of the class and every descendant.
//
// Slot signatures use WIT primitive types from go.bytecodealliance.org/wit.
// Coerce converts host values to the declared type with range checks.
package descriptor
