package workflow

import "errors"

// State names one phase of the return workflow.
type State string

// Event names the result of executing one phase.
type Event string

const (
	RENDER   State = "RENDER"
	DELIVER  State = "DELIVER"
	FALLBACK State = "FALLBACK"
	LOG      State = "LOG"
	DONE     State = "DONE"
)

const (
	ERendered        Event = "rendered"
	ERenderFailed    Event = "render_failed"
	EDelivered       Event = "delivered"
	EDeliveryFailed  Event = "delivery_failed"
	EFallbackSent    Event = "fallback_sent"
	EFallbackFailed  Event = "fallback_failed"
	EFallbackSkipped Event = "fallback_skipped"
	ELogged          Event = "logged"
	ELogFailed       Event = "log_failed"
	ETimeout         Event = "timeout"
)

// ErrIllegal reports an event that has no transition from the current state.
var ErrIllegal = errors.New("illegal transition")

var table = map[State]map[Event]State{
	RENDER: {
		ERendered:     DELIVER,
		ERenderFailed: DONE,
		ETimeout:      DONE,
	},
	DELIVER: {
		EDelivered:      LOG,
		EDeliveryFailed: FALLBACK,
		ETimeout:        DONE,
	},
	FALLBACK: {
		EFallbackSent:    LOG,
		EFallbackFailed:  LOG,
		EFallbackSkipped: LOG,
		ETimeout:         DONE,
	},
	LOG: {
		ELogged:    DONE,
		ELogFailed: DONE,
		ETimeout:   DONE,
	},
	DONE: {},
}

// Decide resolves the next state for an event. Every transition the engine
// may take is enumerated here; anything else is ErrIllegal.
func Decide(from State, ev Event) (State, error) {
	next, ok := table[from][ev]
	if !ok {
		return from, ErrIllegal
	}
	return next, nil
}
