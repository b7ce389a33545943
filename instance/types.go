package instance

import (
	"strconv"
)

// ID identifies one live bridged instance.
// The low 32 bits are the slot index plus one, the high 32 bits the slot
// generation. ID 0 is reserved and always invalid.
type ID uint64

func makeID(slot, gen uint32) ID {
	return ID(uint64(gen)<<32 | uint64(slot+1))
}

func (id ID) slot() uint32 { return uint32(id) - 1 }

func (id ID) gen() uint32 { return uint32(id >> 32) }

func (id ID) String() string {
	if id.gen() == 0 {
		return strconv.FormatUint(uint64(uint32(id)), 10)
	}
	return strconv.FormatUint(uint64(uint32(id)), 10) + "g" + strconv.FormatUint(uint64(id.gen()), 10)
}

// Mode is the ownership relation between a proxy and its native storage.
type Mode uint8

const (
	// ModeOwnedCopy: the proxy exclusively owns an independent copy.
	ModeOwnedCopy Mode = iota
	// ModeShared: the proxy holds one share of a refcounted value.
	ModeShared
	// ModeBorrowed: the proxy aliases storage owned elsewhere.
	ModeBorrowed
)

func (m Mode) String() string {
	switch m {
	case ModeOwnedCopy:
		return "owned-copy"
	case ModeShared:
		return "shared"
	case ModeBorrowed:
		return "borrowed-reference"
	default:
		return "unknown"
	}
}

// Entry is one row of the instance table.
type Entry struct {
	// Value is the object the row stands for (the runtime stores its proxy).
	// It is not part of the dump.
	Value any
	Class string
	Site  string
	Held  []string
	ID    ID
	Refs  int
	Mode  Mode
}

// Key identifies native storage for alias lookups: the storage pointer and
// the arena index of the class it is viewed as. Storage must be comparable,
// in practice a pointer.
type Key struct {
	Storage any
	Class   int
}

// EventType enumerates instance lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventUnregistered
	EventRetained
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventUnregistered:
		return "unregistered"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after the table changed.
type Event struct {
	Entry Entry
	Type  EventType
}

// Observer receives instance lifecycle events.
type Observer interface {
	OnInstanceEvent(Event)
}

// Dropper is optionally implemented by native payloads that need cleanup
// when their owning proxy goes away.
type Dropper interface {
	Drop()
}
