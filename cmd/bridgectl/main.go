// Command bridgectl loads a binding manifest and exercises its classes from
// the command line or an interactive terminal UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/objbridge"
	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/engine"
	"github.com/wippyai/objbridge/runtime"
)

// argList collects repeated -arg flags.
type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var (
		manifestPath = flag.String("manifest", "", "Path to binding manifest (default: built-in test binding)")
		configPath   = flag.String("config", "", "Path to runtime config TOML (overrides the manifest [runtime] table)")
		className    = flag.String("new", "", "Class to instantiate")
		method       = flag.String("call", "", "Method to call on the new instance")
		list         = flag.Bool("list", false, "List classes and exit")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
		version      = flag.Bool("version", false, "Print version and exit")
		logLevel     = flag.String("log-level", "", "Log level for registry, engine and runtime (debug, info, warn, error)")
		args         argList
	)
	flag.Var(&args, "arg", "Method argument (repeatable; use #id for instance arguments)")
	flag.Parse()

	if *version {
		fmt.Println("bridgectl", objbridge.Version)
		return
	}

	if !*list && !*interactive && *className == "" {
		fmt.Fprintln(os.Stderr, "Usage: bridgectl [-manifest file.toml] -list")
		fmt.Fprintln(os.Stderr, "       bridgectl [-manifest file.toml] -new Class [-call method] [-arg v ...]")
		fmt.Fprintln(os.Stderr, "       bridgectl [-manifest file.toml] -i  (interactive mode)")
		os.Exit(1)
	}

	if *logLevel != "" {
		l, err := runtime.NewLogger(*logLevel)
		if err != nil {
			fail(err)
		}
		descriptor.SetLogger(l)
		engine.SetLogger(l)
		runtime.SetLogger(l)
		defer func() { _ = l.Sync() }()
	}

	ctx := context.Background()
	s, err := openSession(ctx, *manifestPath, *configPath)
	if err != nil {
		fail(err)
	}
	defer func() { _ = s.close(ctx) }()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fail(fmt.Errorf("interactive mode requires a terminal"))
		}
		if err := runInteractive(ctx, s); err != nil {
			fail(err)
		}
		return
	}

	if *list {
		printClasses(s)
		return
	}

	if err := run(ctx, s, *className, *method, args); err != nil {
		_ = s.close(ctx)
		fail(err)
	}
}

func run(ctx context.Context, s *session, className, method string, args []string) error {
	p, err := s.construct(ctx, className)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", p)
	fmt.Printf("  mro: %s\n", mroString(p.Class()))

	if method != "" {
		res, err := s.call(ctx, p, method, args)
		if err != nil {
			return err
		}
		fmt.Printf("%s(%s) = %s\n", method, strings.Join(args, ", "), formatResult(res))
	}

	fmt.Println()
	fmt.Println("Instances:")
	if dump := s.rt.Dump(); dump != "" {
		fmt.Println(dump)
	} else {
		fmt.Println("  (none)")
	}
	return nil
}
