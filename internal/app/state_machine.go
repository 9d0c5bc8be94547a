package app

import "sync"

type State string

type Event string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StatePaused   State = "PAUSED"
	StateError    State = "ERROR"
)

const (
	EventStart   Event = "START"
	EventStarted Event = "STARTED"
	EventPause   Event = "PAUSE"
	EventResume  Event = "RESUME"
	EventFail    Event = "FAIL"
	EventStop    Event = "STOP"
)

type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateStopped}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nextState(s.state, event)
	return s.state
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func nextState(current State, event Event) State {
	if event == EventStop {
		return StateStopped
	}
	switch current {
	case StateStopped:
		if event == EventStart {
			return StateStarting
		}
	case StateStarting:
		if event == EventStarted {
			return StateRunning
		}
		if event == EventFail {
			return StateError
		}
	case StateRunning:
		if event == EventPause {
			return StatePaused
		}
		if event == EventFail {
			return StateError
		}
	case StatePaused:
		if event == EventResume {
			return StateRunning
		}
		if event == EventFail {
			return StateError
		}
	}
	return current
}
