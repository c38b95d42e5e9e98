// Package note carries the MIDI side of the bridge: the Sink the engine
// emits through, a gomidi-backed output manager, and an in-memory recorder
// for byte-exact assertions.
package note

import (
	"math"

	"gitlab.com/gomidi/midi/v2"
)

// NoteID is a MIDI note number (middle C is 60).
type NoteID uint8

// Channel is a MIDI channel, 0-15.
type Channel uint8

// The engine only addresses the standard 88-key piano range, A0 to C8.
const (
	MinNote NoteID = 21
	MaxNote NoteID = 108
)

// Sink accepts note events and transmits them as 3-byte MIDI channel-voice
// messages. Velocity and pressure are normalized to [0,1]; values outside
// the range are clamped before encoding.
type Sink interface {
	NoteOn(n NoteID, velocity float32, ch Channel) error
	NoteOff(n NoteID, velocity float32, ch Channel) error
	PolyphonicAftertouch(n NoteID, pressure float32, ch Channel) error
}

// dataByte folds a [0,1] float into a 7-bit MIDI data byte, rounding to the
// nearest step.
func dataByte(v float32) uint8 {
	switch {
	case v >= 1:
		return 127
	case v > 0:
		return uint8(math.Round(float64(v) * 127))
	default:
		return 0
	}
}

func noteOnMessage(n NoteID, velocity float32, ch Channel) midi.Message {
	return midi.NoteOn(uint8(ch), uint8(n), dataByte(velocity))
}

func noteOffMessage(n NoteID, velocity float32, ch Channel) midi.Message {
	return midi.NoteOffVelocity(uint8(ch), uint8(n), dataByte(velocity))
}

func aftertouchMessage(n NoteID, pressure float32, ch Channel) midi.Message {
	return midi.PolyAfterTouch(uint8(ch), uint8(n), dataByte(pressure))
}

// Recorder is a Sink that keeps the encoded messages in memory instead of
// transmitting them. Not safe for concurrent use; the engine serializes its
// emissions.
type Recorder struct {
	msgs [][]byte
}

func (r *Recorder) NoteOn(n NoteID, velocity float32, ch Channel) error {
	r.msgs = append(r.msgs, noteOnMessage(n, velocity, ch))
	return nil
}

func (r *Recorder) NoteOff(n NoteID, velocity float32, ch Channel) error {
	r.msgs = append(r.msgs, noteOffMessage(n, velocity, ch))
	return nil
}

func (r *Recorder) PolyphonicAftertouch(n NoteID, pressure float32, ch Channel) error {
	r.msgs = append(r.msgs, aftertouchMessage(n, pressure, ch))
	return nil
}

// Messages returns the recorded raw messages in emission order.
func (r *Recorder) Messages() [][]byte {
	return r.msgs
}
