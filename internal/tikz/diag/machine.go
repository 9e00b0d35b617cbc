// Package diag triages the TeX toolchain's log stream into actionable reports.
//
// Lines are matched against an ordered whitelist while the stream looks
// healthy. The first unrecognized line moves the machine into an error state
// for the current phase and every later line is kept verbatim.
package diag

import (
	"fmt"
	"strings"
)

// State is the classifier's position within one buffer lifetime.
type State int

// Classifier states. Transitions only move forward.
const (
	StatePreambleNormal State = iota
	StatePreambleError
	StateDocumentNormal
	StateDocumentError
)

func (s State) String() string {
	switch s {
	case StatePreambleNormal:
		return "preamble_normal"
	case StatePreambleError:
		return "preamble_error"
	case StateDocumentNormal:
		return "document_normal"
	case StateDocumentError:
		return "document_error"
	default:
		return "unknown"
	}
}

// IsError reports whether s is one of the error states.
func (s State) IsError() bool {
	return s == StatePreambleError || s == StateDocumentError
}

// Phase identifies where the first error happened.
type Phase int

// Error phases.
const (
	PhaseNone Phase = iota
	PhasePreamble
	PhaseDocument
)

func (p Phase) String() string {
	switch p {
	case PhasePreamble:
		return "preamble"
	case PhaseDocument:
		return "document"
	default:
		return "none"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*p = PhaseNone
	case "preamble":
		*p = PhasePreamble
	case "document":
		*p = PhaseDocument
	default:
		return fmt.Errorf("unknown diagnostic phase %q", text)
	}
	return nil
}

// Report titles shown above the retained log lines.
const (
	PreambleErrorTitle = "TikZ Preamble Error"
	DocumentErrorTitle = "TikZ Document Error"
)

// Report is the user-facing result of a flush.
type Report struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Lines []string `json:"lines"`
	Phase Phase    `json:"phase"`
}

// Machine is the line-by-line state machine over one buffer.
type Machine struct {
	rules    Rules
	retained []string
	state    State
	phase    Phase
}

// NewMachine starts a machine in StatePreambleNormal.
func NewMachine(rules Rules) *Machine {
	return &Machine{rules: rules}
}

// Step classifies one line and returns the resulting state.
func (m *Machine) Step(line string) State {
	switch m.state {
	case StatePreambleNormal:
		verdict, ok := m.rules.match(line)
		switch {
		case !ok:
			m.fail(StatePreambleError, PhasePreamble, line)
		case verdict == VerdictDocument:
			m.state = StateDocumentNormal
		}
	case StateDocumentNormal:
		if verdict, ok := m.rules.match(line); !ok || verdict != VerdictDocument {
			m.fail(StateDocumentError, PhaseDocument, line)
		}
	default:
		m.retained = append(m.retained, line)
	}
	return m.state
}

func (m *Machine) fail(state State, phase Phase, line string) {
	m.state = state
	if m.phase == PhaseNone {
		m.phase = phase
	}
	m.retained = append(m.retained, line)
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Phase returns the first error phase, or PhaseNone.
func (m *Machine) Phase() Phase { return m.phase }

// Retained returns the lines kept for display.
func (m *Machine) Retained() []string {
	return append([]string(nil), m.retained...)
}

// Report builds the user-facing report. ok is false when nothing was retained.
func (m *Machine) Report() (Report, bool) {
	if len(m.retained) == 0 {
		return Report{}, false
	}
	title := DocumentErrorTitle
	if m.phase == PhasePreamble {
		title = PreambleErrorTitle
	}
	lines := m.Retained()
	return Report{
		Phase: m.phase,
		Title: title,
		Body:  strings.Join(lines, "\n"),
		Lines: lines,
	}, true
}

// Classify runs a fresh machine over lines.
func Classify(lines []string, rules Rules) (Report, bool) {
	m := NewMachine(rules)
	for _, line := range lines {
		m.Step(line)
	}
	return m.Report()
}
