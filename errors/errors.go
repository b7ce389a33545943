package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in the binding lifecycle the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"  // class registration
	PhaseLinearize Phase = "linearize" // MRO computation
	PhaseConstruct Phase = "construct" // proxy construction
	PhaseDispatch  Phase = "dispatch"  // method resolution and calls
	PhaseConvert   Phase = "convert"   // argument and result conversion
	PhaseRelease   Phase = "release"   // handle release
	PhaseHost      Phase = "host"      // host class definition
	PhaseLoad      Phase = "load"      // manifest and module loading
	PhaseParse     Phase = "parse"     // manifest parsing
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindUnknownParent         Kind = "unknown_parent"
	KindInconsistentHierarchy Kind = "inconsistent_hierarchy"
	KindInstantiation         Kind = "instantiation"
	KindAbstractMethod        Kind = "abstract_method"
	KindNotFound              Kind = "not_found"
	KindNotCopyable           Kind = "not_copyable"
	KindNotInitialized        Kind = "not_initialized"
	KindReleased              Kind = "released"
	KindForeignProxy          Kind = "foreign_proxy"
	KindTypeMismatch          Kind = "type_mismatch"
	KindOverflow              Kind = "overflow"
	KindInvalidInput          Kind = "invalid_input"
	KindInvalidData           Kind = "invalid_data"
	KindTrap                  Kind = "trap"
)

// Sentinel targets for errors.Is. They carry no phase, so they match an
// error of the same kind raised in any phase.
var (
	ErrDuplicateRegistration = &Error{Kind: KindDuplicateRegistration}
	ErrUnknownParent         = &Error{Kind: KindUnknownParent}
	ErrInconsistentHierarchy = &Error{Kind: KindInconsistentHierarchy}
	ErrInstantiation         = &Error{Kind: KindInstantiation}
	ErrAbstractMethod        = &Error{Kind: KindAbstractMethod}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrNotCopyable           = &Error{Kind: KindNotCopyable}
	ErrNotInitialized        = &Error{Kind: KindNotInitialized}
	ErrReleased              = &Error{Kind: KindReleased}
	ErrForeignProxy          = &Error{Kind: KindForeignProxy}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrTrap                  = &Error{Kind: KindTrap}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Class   string
	Method  string
	GoType  string
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" ")
		b.WriteString(e.Class)
		if e.Method != "" {
			b.WriteByte('.')
			b.WriteString(e.Method)
		}
	} else if e.Method != "" {
		b.WriteString(" ")
		b.WriteString(e.Method)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WitType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WitType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", WIT type ")
			b.WriteString(e.WitType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Kinds must match; the phase is compared only when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the class id
func (b *Builder) Class(id string) *Builder {
	b.err.Class = id
	return b
}

// Method sets the method name
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Path sets the argument or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the taxonomy

// DuplicateRegistration reports a class id registered twice
func DuplicateRegistration(classID string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicateRegistration,
		Class:  classID,
		Detail: "class already registered",
	}
}

// UnknownParent reports a parent that is not registered yet
func UnknownParent(classID, parentID string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindUnknownParent,
		Class:  classID,
		Detail: fmt.Sprintf("parent %q is not registered", parentID),
		Value:  parentID,
	}
}

// InconsistentHierarchy reports an irreconcilable linearization
func InconsistentHierarchy(classID, detail string) *Error {
	return &Error{
		Phase:  PhaseLinearize,
		Kind:   KindInconsistentHierarchy,
		Class:  classID,
		Detail: detail,
	}
}

// AbstractMethod reports a call that reached only abstract slots
func AbstractMethod(classID, method string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindAbstractMethod,
		Class:  classID,
		Method: method,
		Detail: "no override and no concrete implementation",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// MethodNotFound reports a method name that no class in the MRO declares
func MethodNotFound(classID, method string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindNotFound,
		Class:  classID,
		Method: method,
		Detail: "no such method",
	}
}

// NotCopyable reports an attempt to copy a class without a copier
func NotCopyable(classID string) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindNotCopyable,
		Class:  classID,
		Detail: "type is not copy constructible",
	}
}

// NotInitialized reports a native base whose payload was never constructed
func NotInitialized(classID, base string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindNotInitialized,
		Class:  classID,
		Detail: fmt.Sprintf("native base %s not initialized", base),
	}
}

// Released reports use of a proxy after its last handle was released
func Released(classID string, id uint64) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindReleased,
		Class:  classID,
		Detail: fmt.Sprintf("instance #%d already released", id),
		Value:  id,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation wraps a constructor failure
func Instantiation(classID string, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindInstantiation,
		Class:  classID,
		Detail: "construct instance",
		Cause:  cause,
	}
}

// Load creates a loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// AbstractSlot names one unresolved abstract slot and the class declaring it
type AbstractSlot struct {
	Owner string // declaring class id
	Name  string // slot name
}

// AbstractSlotsError is returned when constructing a class that still has
// unresolved abstract slots.
type AbstractSlotsError struct {
	Class string
	Slots []AbstractSlot
}

// NewAbstractSlotsError creates an error from a list of "owner.slot" strings
func NewAbstractSlotsError(classID string, slots []string) *AbstractSlotsError {
	result := &AbstractSlotsError{
		Class: classID,
		Slots: make([]AbstractSlot, 0, len(slots)),
	}
	for _, s := range slots {
		owner, name := parseSlotKey(s)
		result.Slots = append(result.Slots, AbstractSlot{Owner: owner, Name: name})
	}
	return result
}

func parseSlotKey(key string) (owner, name string) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (e *AbstractSlotsError) Error() string {
	if len(e.Slots) == 0 {
		return "[construct] instantiation " + e.Class + ": no abstract slots specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[construct] instantiation %s: %d unresolved abstract slot(s):\n", e.Class, len(e.Slots))

	// Group by declaring class
	byOwner := make(map[string][]string)
	var ownerOrder []string
	for _, s := range e.Slots {
		if _, exists := byOwner[s.Owner]; !exists {
			ownerOrder = append(ownerOrder, s.Owner)
		}
		byOwner[s.Owner] = append(byOwner[s.Owner], s.Name)
	}

	for _, owner := range ownerOrder {
		names := byOwner[owner]
		sort.Strings(names)
		b.WriteString("\n  ")
		b.WriteString(owner)
		b.WriteString(":\n")
		for _, n := range names {
			b.WriteString("    - ")
			b.WriteString(n)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type.
// An AbstractSlotsError is an instantiation error.
func (e *AbstractSlotsError) Is(target error) bool {
	switch t := target.(type) {
	case *AbstractSlotsError:
		return true
	case *Error:
		return t.Kind == KindInstantiation && (t.Phase == "" || t.Phase == PhaseConstruct)
	}
	return false
}
