package service

import "strings"

// State is the session lifecycle state.
type State int

// Session states.
const (
	Idle State = iota
	Countdown
	Running
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Countdown:
		return "countdown"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Command is an operator request to the session.
type Command string

// Session commands.
const (
	CmdStart   Command = "start"
	CmdPause   Command = "pause"
	CmdResume  Command = "resume"
	CmdRestart Command = "restart"
	CmdEnd     Command = "end"
)

// ParseCommand accepts a command name in any case.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CmdStart, CmdPause, CmdResume, CmdRestart, CmdEnd:
		return c, nil
	}
	return "", ErrUnknownCommand
}

// next returns the state a command leads to from s.
func next(s State, c Command) (State, error) {
	switch c {
	case CmdStart:
		if s == Idle || s == Ended {
			return Countdown, nil
		}
	case CmdPause:
		if s == Running {
			return Paused, nil
		}
	case CmdResume:
		if s == Paused {
			return Running, nil
		}
	case CmdRestart:
		if s != Idle {
			return Countdown, nil
		}
	case CmdEnd:
		if s == Countdown || s == Running || s == Paused {
			return Ended, nil
		}
	default:
		return s, ErrUnknownCommand
	}
	return s, &TransitionError{From: s, Command: c}
}
