// Package antiflutter gates outbound alerts so an oscillating decision
// stream produces at most one alert per cooldown.
package antiflutter

import (
	"time"

	"NewsSignal/internal/domain/models"
)

// State is either NoBaseline (Armed == false) or Armed(Last, CooldownUntil).
type State struct {
	Armed         bool            `json:"armed" msgpack:"armed"`
	Last          models.Decision `json:"last_decision" msgpack:"last"`
	CooldownUntil time.Time       `json:"cooldown_until" msgpack:"cooldown_until"`
}

// Transition is the pure state machine step. It returns the next state and
// whether an alert should go out.
func Transition(s State, d models.Decision, now time.Time, cooldown time.Duration) (State, bool) {
	if !s.Armed {
		return State{Armed: true, Last: d, CooldownUntil: now.Add(cooldown)}, true
	}
	if d == s.Last {
		return s, false
	}
	if now.Before(s.CooldownUntil) {
		return s, false
	}
	until := now.Add(cooldown)
	if until.Before(s.CooldownUntil) {
		until = s.CooldownUntil
	}
	return State{Armed: true, Last: d, CooldownUntil: until}, true
}

// Machine wraps Transition with a fixed cooldown. It is not safe for
// concurrent use; the notifier loop owns it.
type Machine struct {
	cooldown time.Duration
	state    State
}

func NewMachine(cooldown time.Duration) *Machine {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Machine{cooldown: cooldown}
}

// OnDecision feeds one decision and reports whether to emit.
func (m *Machine) OnDecision(d models.Decision, now time.Time) bool {
	next, emit := Transition(m.state, d, now, m.cooldown)
	m.state = next
	return emit
}

func (m *Machine) State() State { return m.state }

// Restore loads a checkpointed state.
func (m *Machine) Restore(s State) { m.state = s }

// Reset returns to NoBaseline.
func (m *Machine) Reset() { m.state = State{} }

func (m *Machine) Cooldown() time.Duration { return m.cooldown }
