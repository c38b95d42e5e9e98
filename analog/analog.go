// Package analog models the key-depth side of the bridge: key identifiers,
// per-tick depth snapshots, and the sources that produce them.
package analog

// KeyCode identifies a physical key by its USB HID usage ID (keyboard page).
// This is the identifier space the analog bridge reports in.
type KeyCode uint16

// Snapshot holds the depth of every active key at one instant, normalized to
// [0,1] where 0 is fully released and 1 is bottomed out. Keys absent from the
// map are at depth 0.
type Snapshot map[KeyCode]float32

// Source supplies one Snapshot per poll tick. ReadSnapshot returns at most
// max entries; implementations pick which entries to drop when more keys are
// active than the cap allows.
type Source interface {
	ReadSnapshot(max int) (Snapshot, error)
	Close() error
}

// SourceFunc adapts a plain snapshot function to the Source interface.
// Close is a no-op.
type SourceFunc func(max int) (Snapshot, error)

func (f SourceFunc) ReadSnapshot(max int) (Snapshot, error) { return f(max) }

func (f SourceFunc) Close() error { return nil }
