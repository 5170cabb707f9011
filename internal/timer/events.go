package timer

import "time"

// Mode is the kind of interval being timed.
type Mode string

const (
	ModeWork  Mode = "work"
	ModeBreak Mode = "break"
)

// State reports whether the countdown is moving.
type State string

const (
	StatePaused  State = "paused"
	StateRunning State = "running"
)

// EventType defines the type of Timer event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventTick        EventType = "tick"
	EventComplete    EventType = "complete"
	EventModeChange  EventType = "mode_change"
)

// Event represents a Timer update for observers.
type Event struct {
	Type      EventType
	Mode      Mode
	State     State
	Remaining time.Duration
	// Minutes is the length of the finished interval on EventComplete.
	Minutes float64
	At      time.Time
}
