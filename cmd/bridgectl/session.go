package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/instance"
	"github.com/wippyai/objbridge/internal/testbinding"
	"github.com/wippyai/objbridge/manifest"
	"github.com/wippyai/objbridge/runtime"
)

// session owns a runtime and the proxies the user created through it.
type session struct {
	rt      *runtime.Runtime
	proxies map[instance.ID]*runtime.Proxy
	source  string
}

// openSession builds a runtime from a manifest, or from the built-in test
// binding when manifestPath is empty.
func openSession(ctx context.Context, manifestPath, configPath string) (*session, error) {
	var (
		cfg *runtime.Config
		m   *manifest.Manifest
		err error
	)
	if manifestPath != "" {
		m, err = manifest.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		cfg, err = m.Config()
		if err != nil {
			return nil, err
		}
	}
	if configPath != "" {
		cfg, err = runtime.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	if cfg == nil {
		cfg = &runtime.Config{}
	}

	s := &session{
		rt:      runtime.New(cfg),
		proxies: make(map[instance.ID]*runtime.Proxy),
		source:  "built-in test binding",
	}
	if m == nil {
		if err := testbinding.Register(ctx, s.rt); err != nil {
			_ = s.rt.Close(ctx)
			return nil, err
		}
		return s, nil
	}
	if _, err := m.Apply(ctx, s.rt, manifest.NewLibrary()); err != nil {
		_ = s.rt.Close(ctx)
		return nil, err
	}
	s.source = filepath.Base(manifestPath)
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	for id, p := range s.proxies {
		if p.Live() {
			_ = p.Release()
		}
		delete(s.proxies, id)
	}
	return s.rt.Close(ctx)
}

func (s *session) construct(ctx context.Context, classID string) (*runtime.Proxy, error) {
	p, err := s.rt.New(ctx, classID)
	if err != nil {
		return nil, err
	}
	s.proxies[p.ID()] = p
	return p, nil
}

// call parses raw against the slot signature and invokes method on p.
// Proxy results are kept so later calls can pass them as #id.
func (s *session) call(ctx context.Context, p *runtime.Proxy, method string, raw []string) (any, error) {
	var decl *descriptor.Slot
	if tgt, ok := p.Class().Resolve(method); ok {
		decl = tgt.Decl
	}
	args, err := s.parseArgs(decl, raw)
	if err != nil {
		return nil, err
	}
	res, err := s.rt.Invoke(ctx, p, method, args...)
	if err != nil {
		return nil, err
	}
	if rp, ok := res.(*runtime.Proxy); ok {
		if _, seen := s.proxies[rp.ID()]; seen {
			// Identity reuse retained a proxy we already hold.
			if rp.Refs() > 1 {
				_ = rp.Release()
			}
			return rp, nil
		}
		s.proxies[rp.ID()] = rp
	}
	return res, nil
}

func (s *session) release(p *runtime.Proxy) error {
	delete(s.proxies, p.ID())
	return p.Release()
}

func (s *session) parseArgs(slot *descriptor.Slot, raw []string) ([]any, error) {
	if slot == nil || slot.Variadic || len(slot.Params) == 0 {
		out := make([]any, len(raw))
		for i, r := range raw {
			out[i] = r
		}
		return out, nil
	}
	if len(raw) != len(slot.Params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", slot.Name, len(slot.Params), len(raw))
	}
	out := make([]any, len(raw))
	for i, p := range slot.Params {
		if p.Class != "" {
			proxy, err := s.lookupRef(raw[i])
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.Name, err)
			}
			out[i] = proxy
			continue
		}
		v, err := parseArg(raw[i], p.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// lookupRef resolves "#id" (as printed by Dump) to a held proxy.
func (s *session) lookupRef(ref string) (*runtime.Proxy, error) {
	id := strings.TrimPrefix(ref, "#")
	for pid, p := range s.proxies {
		if pid.String() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no live instance #%s", id)
}

// parseArg converts command line text to the Go value of a WIT primitive.
func parseArg(value string, t wit.Type) (any, error) {
	switch t.(type) {
	case nil, wit.String:
		return value, nil
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.Char:
		r := []rune(value)
		if len(r) != 1 {
			return nil, fmt.Errorf("expected one character, got %q", value)
		}
		return r[0], nil
	case wit.F32, wit.F64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return descriptor.Coerce(t, f)
	case wit.U8, wit.U16, wit.U32, wit.U64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, err
		}
		return descriptor.Coerce(t, n)
	default:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, err
		}
		return descriptor.Coerce(t, n)
	}
}

// signature formats a slot as name(params) -> result. Host-only methods
// have no declaration and print as name(...).
func signature(name string, slot *descriptor.Slot) string {
	if slot == nil {
		return name + "(...)"
	}
	params := make([]string, 0, len(slot.Params))
	for _, p := range slot.Params {
		typ := descriptor.TypeName(p.Type)
		if p.Class != "" {
			typ = "@" + p.Class
		}
		params = append(params, p.Name+": "+typ)
	}
	if slot.Variadic {
		params = append(params, "...")
	}
	sig := slot.Name + "(" + strings.Join(params, ", ") + ")"
	switch {
	case slot.ResultClass != "":
		sig += " -> @" + slot.ResultClass + " [" + slot.Policy.String() + "]"
	case slot.Result != nil:
		sig += " -> " + descriptor.TypeName(slot.Result)
	}
	return sig
}

func mroString(cls *descriptor.Class) string {
	mro := cls.MRO()
	names := make([]string, len(mro))
	for i, c := range mro {
		names[i] = c.ID()
	}
	return strings.Join(names, " -> ")
}

func formatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return "(no result)"
	case string:
		return strconv.Quote(r)
	default:
		return fmt.Sprint(r)
	}
}

func printClasses(s *session) {
	fmt.Printf("Classes (%s):\n", s.source)
	for _, cls := range s.rt.Registry().Classes() {
		fmt.Printf("  %s [%s]\n", cls.ID(), cls.Origin())
		fmt.Printf("    mro: %s\n", mroString(cls))
		for _, name := range cls.Methods() {
			tgt, ok := cls.Resolve(name)
			if !ok {
				continue
			}
			fmt.Printf("    %s  (%s, from %s)\n", signature(name, tgt.Decl), tgt.Kind, tgt.Owner.ID())
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
