package config

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateValidating
	StateMigrating
	StateReady
	StateSaving
	StateFailed
)

var stateNames = map[State]string{
	StateUnloaded:   "unloaded",
	StateLoading:    "loading",
	StateValidating: "validating",
	StateMigrating:  "migrating",
	StateReady:      "ready",
	StateSaving:     "saving",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal successor states. Failed has none.
var transitions = map[State][]State{
	StateUnloaded:   {StateLoading},
	StateLoading:    {StateValidating, StateReady, StateFailed},
	StateValidating: {StateMigrating, StateReady, StateFailed},
	StateMigrating:  {StateMigrating, StateValidating},
	StateReady:      {StateSaving},
	StateSaving:     {StateReady, StateFailed},
}

func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
