package engine

import (
	"time"

	"github.com/Paul1365972/wooting-analog-midi/note"
)

// anchorSlack is the travel distance below which an anchor is considered
// stale and gets restarted, and the dip below the previous sample that
// counts as release jitter.
const anchorSlack = 0.01

// anchor marks where and when the current key-travel segment started.
// Velocity is estimated against it.
type anchor struct {
	at    time.Time
	depth float32
}

// keyState tracks one configured key across ticks and turns its depth
// samples into note decisions.
type keyState struct {
	pressed       bool
	shiftedAmount int8
	velocity      float32
	currentValue  float32
	anchor        *anchor
}

// update consumes one depth sample. It emits at most one message through
// the sink; a send failure is returned as is and leaves the later steps of
// the tick unapplied.
func (s *keyState) update(cfg KeyConfig, newValue float32, shifted int8, now time.Time, sink note.Sink) error {
	// Depths outside [0,1] violate the source contract; clamp so the state
	// invariants hold regardless.
	newValue = clamp01(newValue)

	if (s.currentValue <= cfg.ActuationPoint && newValue > cfg.ActuationPoint && newValue < cfg.Threshold) ||
		newValue <= cfg.ActuationPoint {
		s.anchor = &anchor{at: now, depth: newValue}
		s.velocity = 0
	} else if s.anchor != nil {
		elapsed := float32(now.Sub(s.anchor.at).Seconds())
		if newValue != s.anchor.depth {
			s.velocity = clamp01((newValue - s.anchor.depth) / elapsed * cfg.VelocityScale / 100)
		} else {
			s.velocity = 0
		}
		// A nearly unmoved anchor no longer says anything about travel
		// speed, and a dip below the previous sample is release jitter.
		// Both restart the segment.
		if abs32(s.anchor.depth-newValue) < anchorSlack || newValue < s.currentValue-anchorSlack {
			s.anchor = &anchor{at: now, depth: newValue}
		}
	}

	// The shift only latches while the key is silent so a sounding note
	// keeps its pitch until released.
	if shifted != s.shiftedAmount && !s.pressed {
		s.shiftedAmount = shifted
	}

	if eff, ok := s.effectiveNote(cfg.Note); ok {
		if newValue > cfg.Threshold {
			if !s.pressed {
				if err := sink.NoteOn(eff, s.velocity, cfg.Channel); err != nil {
					return err
				}
				s.pressed = true
			} else if cfg.Aftertouch && newValue != s.currentValue {
				if err := sink.PolyphonicAftertouch(eff, newValue, cfg.Channel); err != nil {
					return err
				}
			}
		} else if s.pressed {
			if err := sink.NoteOff(eff, s.velocity, cfg.Channel); err != nil {
				return err
			}
			s.pressed = false
		}
	}

	s.currentValue = newValue
	return nil
}

// effectiveNote applies the latched shift to the base note; ok is false
// when the result falls outside the addressable range.
func (s *keyState) effectiveNote(base note.NoteID) (note.NoteID, bool) {
	n := int(base) + int(s.shiftedAmount)
	if n < int(note.MinNote) || n > int(note.MaxNote) {
		return 0, false
	}
	return note.NoteID(n), true
}

// clamp01 bounds v to [0,1]. NaN, which a zero elapsed time times a zero
// scale can produce, collapses to 0.
func clamp01(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	default:
		return 0
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
