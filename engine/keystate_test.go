package engine

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/Paul1365972/wooting-analog-midi/note"
)

func TestPressEmitsVelocityFromTravelTime(t *testing.T) {
	cfg := DefaultKeyConfig()
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	// A rest sample anchors the travel segment.
	if err := s.update(cfg, 0, 0, base, &rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if n := len(rec.Messages()); n != 0 {
		t.Fatalf("rest sample emitted %d messages", n)
	}

	// 0 to 0.9 within 50ms: velocity (0.9-0)/0.05 * 5/100 = 0.9.
	if err := s.update(cfg, 0.9, 0, base.Add(50*time.Millisecond), &rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if math.Abs(float64(s.velocity)-0.9) > 1e-6 {
		t.Errorf("velocity: got=%v want=0.9", s.velocity)
	}
	want := []byte{0x90, 60, 114}
	msgs := rec.Messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], want) {
		t.Fatalf("note on: got=%v want=%v", msgs, want)
	}

	// Deeper travel while sounding reports pressure.
	if err := s.update(cfg, 0.95, 0, base.Add(55*time.Millisecond), &rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	want = []byte{0xA0, 60, 121}
	msgs = rec.Messages()
	if len(msgs) != 2 || !bytes.Equal(msgs[1], want) {
		t.Fatalf("aftertouch: got=%v want=%v", msgs, want)
	}

	// Unchanged depth stays silent.
	if err := s.update(cfg, 0.95, 0, base.Add(60*time.Millisecond), &rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if n := len(rec.Messages()); n != 2 {
		t.Fatalf("hold emitted extra messages: %d", n)
	}

	// Release resets velocity before the note-off goes out.
	if err := s.update(cfg, 0, 0, base.Add(65*time.Millisecond), &rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	want = []byte{0x80, 60, 0}
	msgs = rec.Messages()
	if len(msgs) != 3 || !bytes.Equal(msgs[2], want) {
		t.Fatalf("note off: got=%v want=%v", msgs, want)
	}
	if s.pressed {
		t.Error("state still pressed after release")
	}
}

func TestAftertouchCanBeDisabled(t *testing.T) {
	cfg := DefaultKeyConfig()
	cfg.Aftertouch = false
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0, 0, base, &rec)
	_ = s.update(cfg, 0.9, 0, base.Add(10*time.Millisecond), &rec)
	_ = s.update(cfg, 0.95, 0, base.Add(20*time.Millisecond), &rec)

	if n := len(rec.Messages()); n != 1 {
		t.Fatalf("expected only the note on: got %d messages", n)
	}
}

func TestShiftLatchesOnlyWhileSilent(t *testing.T) {
	cfg := DefaultKeyConfig() // note 60, shift 12
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0, 0, base, &rec)
	_ = s.update(cfg, 0.9, 0, base.Add(50*time.Millisecond), &rec)

	// Modifier pressed mid-note: pitch must not move.
	_ = s.update(cfg, 0.95, 12, base.Add(60*time.Millisecond), &rec)
	_ = s.update(cfg, 0, 12, base.Add(70*time.Millisecond), &rec)

	// Next press picks the shift up.
	_ = s.update(cfg, 0.9, 12, base.Add(120*time.Millisecond), &rec)

	want := [][]byte{
		{0x90, 60, 114},
		{0xA0, 60, 121},
		{0x80, 60, 0},
		{0x90, 72, 114},
	}
	msgs := rec.Messages()
	if len(msgs) != len(want) {
		t.Fatalf("message count: got=%d want=%d (%v)", len(msgs), len(want), msgs)
	}
	for i := range want {
		if !bytes.Equal(msgs[i], want[i]) {
			t.Errorf("message %d: got=%v want=%v", i, msgs[i], want[i])
		}
	}
}

func TestShiftBeyondRangeSuppressesNotes(t *testing.T) {
	cfg := DefaultKeyConfig()
	cfg.Note = note.MaxNote
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0, 12, base, &rec) // latches shift, 108+12 leaves the range
	_ = s.update(cfg, 0.9, 12, base.Add(50*time.Millisecond), &rec)

	if n := len(rec.Messages()); n != 0 {
		t.Fatalf("out-of-range note emitted %d messages", n)
	}
	if s.pressed {
		t.Error("suppressed key must not count as pressed")
	}
	if s.currentValue != 0.9 {
		t.Errorf("depth tracking stopped: got=%v want=0.9", s.currentValue)
	}

	// Back in range after the shift clears.
	_ = s.update(cfg, 0, 12, base.Add(60*time.Millisecond), &rec)
	_ = s.update(cfg, 0.9, 0, base.Add(110*time.Millisecond), &rec)

	want := []byte{0x90, 108, 114}
	msgs := rec.Messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], want) {
		t.Fatalf("unshifted press: got=%v want=%v", msgs, want)
	}
}

func TestVelocityClampedAtFullScale(t *testing.T) {
	cfg := DefaultKeyConfig()
	cfg.VelocityScale = 500
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0, 0, base, &rec)
	_ = s.update(cfg, 0.9, 0, base.Add(50*time.Millisecond), &rec)

	if s.velocity != 1 {
		t.Errorf("velocity: got=%v want=1", s.velocity)
	}
	want := []byte{0x90, 60, 127}
	msgs := rec.Messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], want) {
		t.Fatalf("note on: got=%v want=%v", msgs, want)
	}
}

func TestInstantPressWithoutAnchorHasZeroVelocity(t *testing.T) {
	// The very first sample already past the threshold never had a travel
	// segment, so the note fires with velocity 0.
	cfg := DefaultKeyConfig()
	var rec note.Recorder
	s := &keyState{}

	_ = s.update(cfg, 0.9, 0, time.Now(), &rec)

	want := []byte{0x90, 60, 0}
	msgs := rec.Messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], want) {
		t.Fatalf("note on: got=%v want=%v", msgs, want)
	}
	if s.anchor != nil {
		t.Error("no anchor should exist above the threshold")
	}
}

func TestStaleAnchorRestarts(t *testing.T) {
	cfg := DefaultKeyConfig()
	cfg.ActuationPoint = 0.3
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0.2, 0, base, &rec)
	_ = s.update(cfg, 0.35, 0, base.Add(10*time.Millisecond), &rec)
	if s.anchor == nil || s.anchor.depth != 0.35 {
		t.Fatalf("anchor after actuation crossing: got=%+v want depth 0.35", s.anchor)
	}

	// Travel of 0.008 is below the slack, so the segment restarts after
	// the velocity is taken.
	_ = s.update(cfg, 0.358, 0, base.Add(20*time.Millisecond), &rec)
	if math.Abs(float64(s.velocity)-0.04) > 1e-3 {
		t.Errorf("velocity: got=%v want=0.04", s.velocity)
	}
	if s.anchor == nil || s.anchor.depth != 0.358 {
		t.Fatalf("anchor not restarted: got=%+v", s.anchor)
	}
}

func TestReleaseDipRestartsAnchor(t *testing.T) {
	cfg := DefaultKeyConfig()
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0, 0, base, &rec)
	_ = s.update(cfg, 0.5, 0, base.Add(10*time.Millisecond), &rec)
	_ = s.update(cfg, 0.7, 0, base.Add(20*time.Millisecond), &rec)
	if s.anchor == nil || s.anchor.depth != 0.5 {
		t.Fatalf("rising travel must keep the anchor: got=%+v", s.anchor)
	}

	// Dropping more than the slack below the previous sample restarts.
	_ = s.update(cfg, 0.65, 0, base.Add(30*time.Millisecond), &rec)
	if s.anchor == nil || s.anchor.depth != 0.65 {
		t.Fatalf("dip must restart the anchor: got=%+v", s.anchor)
	}
}

func TestDepthEqualToAnchorMeansZeroVelocity(t *testing.T) {
	cfg := DefaultKeyConfig()
	cfg.ActuationPoint = 0.3
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 0.2, 0, base, &rec)
	_ = s.update(cfg, 0.5, 0, base.Add(10*time.Millisecond), &rec)
	_ = s.update(cfg, 0.5, 0, base.Add(20*time.Millisecond), &rec)

	if s.velocity != 0 {
		t.Errorf("velocity: got=%v want=0", s.velocity)
	}
}

func TestOutOfRangeSamplesAreClamped(t *testing.T) {
	cfg := DefaultKeyConfig()
	var rec note.Recorder
	s := &keyState{}
	base := time.Now()

	_ = s.update(cfg, 1.5, 0, base, &rec)
	if s.currentValue != 1 {
		t.Errorf("over-range sample: got=%v want=1", s.currentValue)
	}
	_ = s.update(cfg, -0.3, 0, base.Add(10*time.Millisecond), &rec)
	if s.currentValue != 0 {
		t.Errorf("under-range sample: got=%v want=0", s.currentValue)
	}

	msgs := rec.Messages()
	if len(msgs) != 2 || msgs[0][0] != 0x90 || msgs[1][0] != 0x80 {
		t.Fatalf("clamped press cycle: got=%v", msgs)
	}
}
