package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	dumpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	s        *session
	current  *runtime.Proxy
	result   string
	classes  []*descriptor.Class
	methods  []methodInfo
	inputs   []textinput.Model
	selected int
	method   int
	focusIdx int
	state    modelState
}

type methodInfo struct {
	name  string
	kind  descriptor.TargetKind
	owner string
	decl  *descriptor.Slot
}

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(ctx context.Context, s *session) *interactiveModel {
	return &interactiveModel{
		ctx:     ctx,
		s:       s,
		classes: s.rt.Registry().Classes(),
		state:   stateSelectClass,
	}
}

type constructedMsg struct {
	err   error
	proxy *runtime.Proxy
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateInputArgs && msg.String() == "q" {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			m.move(-1)

		case "down", "j":
			m.move(1)

		case "r":
			if m.state == stateSelectMethod && m.current != nil {
				if err := m.s.release(m.current); err != nil {
					m.err = err
				}
				m.current = nil
				m.state = stateSelectClass
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.classes) == 0 {
					break
				}
				return m, m.construct
			case stateSelectMethod:
				if len(m.methods) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs
			case stateInputArgs:
				return m, m.callMethod
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
				m.current = nil
				m.err = nil
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case constructedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.current = msg.proxy
			m.methods = methodsOf(msg.proxy.Class())
			m.method = 0
			m.state = stateSelectMethod
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) move(delta int) {
	switch m.state {
	case stateSelectClass:
		m.selected = clamp(m.selected+delta, len(m.classes))
	case stateSelectMethod:
		m.method = clamp(m.method+delta, len(m.methods))
	}
}

func clamp(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func methodsOf(cls *descriptor.Class) []methodInfo {
	names := cls.Methods()
	out := make([]methodInfo, 0, len(names))
	for _, name := range names {
		tgt, ok := cls.Resolve(name)
		if !ok {
			continue
		}
		out = append(out, methodInfo{
			name:  name,
			kind:  tgt.Kind,
			owner: tgt.Owner.ID(),
			decl:  tgt.Decl,
		})
	}
	return out
}

func (m *interactiveModel) prepareInputs() {
	decl := m.methods[m.method].decl
	m.inputs = nil
	m.focusIdx = 0
	if decl == nil {
		return
	}
	m.inputs = make([]textinput.Model, len(decl.Params))
	for i, p := range decl.Params {
		ti := textinput.New()
		ti.Placeholder = descriptor.TypeName(p.Type)
		if p.Class != "" {
			ti.Placeholder = "#id of " + p.Class
		}
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
}

func (m *interactiveModel) construct() tea.Msg {
	p, err := m.s.construct(m.ctx, m.classes[m.selected].ID())
	return constructedMsg{proxy: p, err: err}
}

func (m *interactiveModel) callMethod() tea.Msg {
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	res, err := m.s.call(m.ctx, m.current, m.methods[m.method].name, raw)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResult(res)}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("objbridge"))
	b.WriteString(" ")
	b.WriteString(m.s.source)
	if m.current != nil {
		b.WriteString(" ")
		b.WriteString(typeStyle.Render(m.current.String()))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString("Select a class to instantiate:\n\n")
		for i, cls := range m.classes {
			line := funcStyle.Render(cls.ID()) + " " + typeStyle.Render("["+cls.Origin().String()+"]")
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter create • q quit"))

	case stateSelectMethod:
		b.WriteString(fmt.Sprintf("mro: %s\n\n", mroString(m.current.Class())))
		for i, mi := range m.methods {
			line := m.formatMethod(mi)
			if i == m.method {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • r release • esc back • q quit"))

	case stateInputArgs:
		mi := m.methods[m.method]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(mi.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		mi := m.methods[m.method]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(mi.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	dump := m.s.rt.Dump()
	if dump == "" {
		dump = "(no live instances)"
	}
	b.WriteString("\n\n")
	b.WriteString(dumpStyle.Render(dump))
	return b.String()
}

func (m *interactiveModel) formatMethod(mi methodInfo) string {
	sig := signature(mi.name, mi.decl)
	return funcStyle.Render(sig) + " " + typeStyle.Render(mi.kind.String()+" @"+mi.owner)
}

func runInteractive(ctx context.Context, s *session) error {
	p := tea.NewProgram(newInteractiveModel(ctx, s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
