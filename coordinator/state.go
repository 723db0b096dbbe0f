package coordinator

import "fmt"

type State uint8

const (
	Idle State = iota
	Running
	Completed
	Aborted
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

func (s State) Terminal() bool {
	return s >= Completed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := Idle; c <= Cancelled; c++ {
		if c.String() == string(b) {
			*s = c

			return nil
		}
	}

	return fmt.Errorf("unknown run state %q", string(b))
}
