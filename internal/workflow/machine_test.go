package workflow

import (
	"errors"
	"testing"
)

func TestDecideValidTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{"render_ok", RENDER, ERendered, DELIVER},
		{"render_failed", RENDER, ERenderFailed, DONE},
		{"render_timeout", RENDER, ETimeout, DONE},
		{"delivered", DELIVER, EDelivered, LOG},
		{"delivery_failed", DELIVER, EDeliveryFailed, FALLBACK},
		{"deliver_timeout", DELIVER, ETimeout, DONE},
		{"fallback_sent", FALLBACK, EFallbackSent, LOG},
		{"fallback_failed", FALLBACK, EFallbackFailed, LOG},
		{"fallback_skipped", FALLBACK, EFallbackSkipped, LOG},
		{"fallback_timeout", FALLBACK, ETimeout, DONE},
		{"logged", LOG, ELogged, DONE},
		{"log_failed", LOG, ELogFailed, DONE},
		{"log_timeout", LOG, ETimeout, DONE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Decide(tc.from, tc.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next != tc.want {
				t.Errorf("Decide(%s, %s) = %s want %s", tc.from, tc.event, next, tc.want)
			}
		})
	}
}

func TestDecideIllegalTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  State
		event Event
	}{
		{"render_cannot_deliver", RENDER, EDelivered},
		{"deliver_cannot_log_fail", DELIVER, ELogFailed},
		{"fallback_cannot_render", FALLBACK, ERendered},
		{"log_cannot_fall_back", LOG, EDeliveryFailed},
		{"done_is_terminal", DONE, ERendered},
		{"done_no_timeout", DONE, ETimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decide(tc.from, tc.event); !errors.Is(err, ErrIllegal) {
				t.Fatalf("expected ErrIllegal, got %v", err)
			}
		})
	}
}
