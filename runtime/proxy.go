package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/instance"
)

// Proxy is the host-side handle of a bridged instance.
//
// A proxy shares its identity with one instance table entry. It holds one
// native payload per initialized native base and starts with one handle;
// Retain and Release adjust the handle count, and the entry disappears
// together with the last handle.
type Proxy struct {
	rt       *Runtime
	class    *descriptor.Class
	share    *Shared
	held     []held
	id       instance.ID
	mu       sync.RWMutex
	mode     instance.Mode
	released bool
}

type held struct {
	class *descriptor.Class
	value any
}

// ID returns the identity of the proxy's instance entry.
func (p *Proxy) ID() instance.ID { return p.id }

// Class returns the dynamic class of the instance.
func (p *Proxy) Class() *descriptor.Class { return p.class }

// Mode returns the ownership mode.
func (p *Proxy) Mode() instance.Mode { return p.mode }

// Runtime returns the runtime that created the proxy.
func (p *Proxy) Runtime() *Runtime { return p.rt }

// Shared returns the shared handle of a shared-mode proxy, or nil.
func (p *Proxy) Shared() *Shared { return p.share }

// Live reports whether the proxy still has handles.
func (p *Proxy) Live() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.released
}

// Refs returns the current handle count, 0 once released.
func (p *Proxy) Refs() int {
	e, ok := p.rt.table.Get(p.id)
	if !ok {
		return 0
	}
	return e.Refs
}

// Held returns the ids of the native classes the proxy holds payloads for.
func (p *Proxy) Held() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.heldNames()
}

func (p *Proxy) heldNames() []string {
	out := make([]string, len(p.held))
	for i, h := range p.held {
		out[i] = h.class.ID()
	}
	return out
}

// Payload returns the first native payload, or nil.
func (p *Proxy) Payload() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.held) == 0 {
		return nil
	}
	return p.held[0].value
}

// PayloadFor returns the payload serving methods declared on cls: the one
// held for cls itself, or the one held for a native subclass viewed as cls.
func (p *Proxy) PayloadFor(cls *descriptor.Class) (any, bool) {
	v, err := p.payloadFor(cls)
	return v, err == nil
}

// payloadFor finds the payload of cls. A subclass payload of another Go
// type is upcast to cls's type through its embedded fields.
func (p *Proxy) payloadFor(cls *descriptor.Class) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, h := range p.held {
		if h.class == cls {
			return h.value, nil
		}
	}
	for _, h := range p.held {
		if !h.class.Is(cls) {
			continue
		}
		want := cls.GoType()
		if want == nil || reflect.TypeOf(h.value) == want {
			return h.value, nil
		}
		if v, ok := upcast(h.value, want); ok {
			return v, nil
		}
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Class(h.class.ID()).
			GoType(fmt.Sprintf("%T", h.value)).
			Detail("no embedded %s to view it as %s", want, cls.ID()).
			Build()
	}
	return nil, errors.NotInitialized(p.class.ID(), cls.ID())
}

func (p *Proxy) holds(cls *descriptor.Class) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, h := range p.held {
		if h.class == cls {
			return true
		}
	}
	return false
}

// Call invokes a method through the proxy's runtime.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (any, error) {
	return p.rt.Invoke(ctx, p, method, args...)
}

// Retain adds a handle.
func (p *Proxy) Retain() error {
	if _, ok := p.rt.table.Retain(p.id); !ok {
		return errors.Released(p.class.ID(), uint64(p.id))
	}
	return nil
}

// Release drops a handle. Releasing the last handle removes the instance
// entry and frees the payloads according to the ownership mode: owned
// payloads implementing instance.Dropper are dropped, a shared handle gives
// up its share, borrowed storage is left alone.
func (p *Proxy) Release() error {
	refs, ok := p.rt.table.Release(p.id)
	if !ok {
		return errors.Released(p.class.ID(), uint64(p.id))
	}
	if refs > 0 {
		return nil
	}

	p.mu.Lock()
	p.released = true
	payloads := p.held
	p.held = nil
	p.mu.Unlock()

	switch p.mode {
	case instance.ModeOwnedCopy:
		for _, h := range payloads {
			if d, ok := h.value.(instance.Dropper); ok {
				d.Drop()
			}
		}
	case instance.ModeShared:
		if p.share != nil {
			p.share.Release()
		}
	}

	p.rt.log.Debug("instance released",
		zap.String("class", p.class.ID()),
		zap.Stringer("id", p.id),
		zap.Stringer("mode", p.mode),
	)
	return nil
}

func (p *Proxy) String() string {
	return fmt.Sprintf("<%s #%s %s>", p.class.ID(), p.id, p.mode)
}

// check rejects proxies that cannot be used with r.
func (p *Proxy) check(r *Runtime) error {
	if p == nil {
		return errors.InvalidInput(errors.PhaseDispatch, "nil proxy")
	}
	if p.rt.id != r.id {
		return errors.New(errors.PhaseDispatch, errors.KindForeignProxy).
			Class(p.class.ID()).
			Detail("proxy belongs to runtime %s", p.rt.id).
			Build()
	}
	p.mu.RLock()
	released := p.released
	p.mu.RUnlock()
	if released {
		return errors.Released(p.class.ID(), uint64(p.id))
	}
	return nil
}

// addHeld records a payload for a native base and binds its storage.
func (p *Proxy) addHeld(cls *descriptor.Class, value any) {
	p.mu.Lock()
	p.held = append(p.held, held{class: cls, value: value})
	names := p.heldNames()
	p.mu.Unlock()

	p.rt.table.SetHeld(p.id, names)
	p.bind(value, cls)
}

// bind makes storage viewed as cls and all its ancestors resolve to p.
func (p *Proxy) bind(storage any, cls *descriptor.Class) {
	if !comparableStorage(storage) {
		return
	}
	for _, c := range cls.MRO() {
		p.rt.table.Bind(instance.Key{Storage: storage, Class: c.Index()}, p.id)
	}
}

// ProxyOf returns the proxy behind a method receiver.
func ProxyOf(self descriptor.Receiver) (*Proxy, bool) {
	r, ok := self.(receiver)
	if !ok {
		return nil, false
	}
	return r.p, true
}

// receiver is the descriptor.Receiver handed to method bodies. owner is the
// class that supplied the running body.
type receiver struct {
	p     *Proxy
	owner *descriptor.Class
}

func (r receiver) ID() uint64 { return uint64(r.p.id) }

func (r receiver) Class() *descriptor.Class { return r.p.class }

func (r receiver) Value() any {
	if r.owner != nil {
		if v, ok := r.p.PayloadFor(r.owner); ok {
			return v
		}
	}
	return r.p.Payload()
}

func (r receiver) Call(ctx context.Context, method string, args ...any) (any, error) {
	return r.p.rt.Invoke(ctx, r.p, method, args...)
}

func comparableStorage(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Pointer && !reflect.ValueOf(v).IsNil()
}

// maxEmbedDepth bounds the search through embedded pointers, which may
// form cycles.
const maxEmbedDepth = 16

// upcast finds the value of type want embedded in v, depth first.
func upcast(v any, want reflect.Type) (any, bool) {
	found, ok := embedded(reflect.ValueOf(v), want, 0)
	if !ok {
		return nil, false
	}
	return found.Interface(), true
}

func embedded(v reflect.Value, want reflect.Type, depth int) (reflect.Value, bool) {
	if depth > maxEmbedDepth {
		return reflect.Value{}, false
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		f := v.Field(i)
		if !sf.IsExported() {
			// Unexported embeds are reachable only through their address.
			if !f.CanAddr() {
				continue
			}
			f = reflect.NewAt(sf.Type, unsafe.Pointer(f.UnsafeAddr())).Elem()
		}
		switch {
		case sf.Type == want:
			if f.Kind() == reflect.Pointer && f.IsNil() {
				continue
			}
			return f, true
		case f.CanAddr() && reflect.PointerTo(sf.Type) == want:
			return f.Addr(), true
		}
		if found, ok := embedded(f, want, depth+1); ok {
			return found, true
		}
	}
	return reflect.Value{}, false
}
