package descriptor

import (
	"context"

	"go.bytecodealliance.org/wit"
)

// SlotKind tags a method slot as having a native body or not.
type SlotKind uint8

const (
	SlotConcrete SlotKind = iota
	SlotAbstract
)

func (k SlotKind) String() string {
	if k == SlotAbstract {
		return "abstract"
	}
	return "concrete"
}

// Policy decides how a native class value returned by a slot crosses into a
// proxy.
type Policy uint8

const (
	// PolicyCopy copies the value with the class copier (owned-copy mode).
	PolicyCopy Policy = iota
	// PolicyMove takes ownership of the returned storage (owned-copy mode).
	PolicyMove
	// PolicyReference aliases storage owned elsewhere (borrowed-reference mode).
	PolicyReference
	// PolicyShare holds one share of a refcounted value (shared mode).
	PolicyShare
)

var policyNames = [...]string{"copy", "move", "reference", "share"}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "unknown"
}

// ParsePolicy maps a policy name to its value.
func ParsePolicy(name string) (Policy, bool) {
	if name == "" {
		return PolicyCopy, true
	}
	for i, n := range policyNames {
		if n == name {
			return Policy(i), true
		}
	}
	return 0, false
}

// Receiver is the view a method body has of the instance it runs on.
type Receiver interface {
	// ID is the identity of the instance entry.
	ID() uint64

	// Class is the dynamic (most derived) class of the instance.
	Class() *Class

	// Value is the native payload for the class that declared the running
	// slot. It is nil for host overrides on classes without native bases.
	Value() any

	// Call performs a virtual call on the same instance through the
	// dispatcher, so host overrides are observed.
	Call(ctx context.Context, method string, args ...any) (any, error)
}

// NativeFunc is a native method body.
type NativeFunc func(ctx context.Context, self Receiver, args []any) (any, error)

// HostFunc is a host-side override installed on a host class.
type HostFunc func(ctx context.Context, self Receiver, args []any) (any, error)

// Constructor builds the native payload of a class.
type Constructor func(ctx context.Context, args []any) (any, error)

// Copier copies a native payload. Classes without one are not copyable.
type Copier func(v any) any

// InitFunc is the initializer of a host class.
type InitFunc func(ctx context.Context, self Receiver, args []any) error

// Param declares one method parameter.
// Exactly one of Type and Class is normally set; neither means untyped.
type Param struct {
	Type  wit.Type
	Name  string
	Class string
}

// Slot is a named operation on a class.
type Slot struct {
	Result      wit.Type
	Body        NativeFunc
	Name        string
	ResultClass string
	Doc         string
	Params      []Param
	Kind        SlotKind
	Policy      Policy
	// Variadic disables the argument count check.
	Variadic bool
}

// Concrete declares a slot with a native body.
func Concrete(name string, body NativeFunc) Slot {
	return Slot{Name: name, Kind: SlotConcrete, Body: body}
}

// Abstract declares a slot without a body.
func Abstract(name string) Slot {
	return Slot{Name: name, Kind: SlotAbstract}
}

// WithParams returns a copy of the slot with the given parameters.
func (s Slot) WithParams(params ...Param) Slot {
	s.Params = params
	return s
}

// Returns returns a copy of the slot with a primitive result type.
func (s Slot) Returns(t wit.Type) Slot {
	s.Result = t
	return s
}

// ReturnsClass returns a copy of the slot returning a class under a policy.
func (s Slot) ReturnsClass(classID string, policy Policy) Slot {
	s.ResultClass = classID
	s.Policy = policy
	return s
}

// Arg declares a primitive parameter.
func Arg(name string, t wit.Type) Param {
	return Param{Name: name, Type: t}
}

// ClassArg declares a parameter that accepts an instance of classID.
func ClassArg(name, classID string) Param {
	return Param{Name: name, Class: classID}
}

// TargetKind is what a dispatch table entry resolved to.
type TargetKind uint8

const (
	TargetOverride TargetKind = iota
	TargetNative
	TargetAbstract
)

func (k TargetKind) String() string {
	switch k {
	case TargetOverride:
		return "override"
	case TargetNative:
		return "native"
	default:
		return "abstract"
	}
}

// Target is a resolved dispatch table entry.
type Target struct {
	// Owner is the class supplying the override or native body, or the
	// nearest class declaring the abstract slot.
	Owner *Class
	// Decl carries the signature used for argument conversion: the
	// owner's own slot for native bodies, otherwise the nearest declaration
	// in MRO order. Nil for host-only methods.
	Decl *Slot
	Host HostFunc
	Name string
	Kind TargetKind
}

// Native returns the native body for a TargetNative entry.
func (t *Target) Native() NativeFunc {
	if t.Kind != TargetNative || t.Owner == nil {
		return nil
	}
	if s, ok := t.Owner.slots[t.Name]; ok {
		return s.Body
	}
	return nil
}
