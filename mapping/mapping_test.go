package mapping

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Paul1365972/wooting-analog-midi/analog"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yml")
	content := `
toggle_keys: [f12]
modifier_keys: [left_shift]
defaults:
  channel: 2
  threshold: 0.6
  aftertouch: false
keys:
  q: {note: 48}
  2: {note: 49, channel: 3, aftertouch: true}
  w: {note: 50, actuation_point: 0.1, velocity_scale: 8.5, shift_amount: -12}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.ToggleKeys) != 1 || cfg.ToggleKeys[0] != analog.KeyF12 {
		t.Errorf("toggle keys: got=%v want=[f12]", cfg.ToggleKeys)
	}
	if len(cfg.ModifierKeys) != 1 || cfg.ModifierKeys[0] != analog.KeyLeftShift {
		t.Errorf("modifier keys: got=%v want=[left_shift]", cfg.ModifierKeys)
	}
	if len(cfg.Keys) != 3 {
		t.Fatalf("key count: got=%d want=3", len(cfg.Keys))
	}

	q := cfg.Keys[analog.KeyQ]
	if q.Note != 48 || q.Channel != 2 || q.Threshold != 0.6 || q.Aftertouch {
		t.Errorf("q inherits the defaults section: got=%+v", q)
	}
	if q.ActuationPoint != 0 || q.VelocityScale != 5.0 || q.ShiftAmount != 12 {
		t.Errorf("q inherits the stock tuning: got=%+v", q)
	}

	two := cfg.Keys[analog.Key2]
	if two.Note != 49 || two.Channel != 3 || !two.Aftertouch {
		t.Errorf("per-key overrides win: got=%+v", two)
	}
	if two.Threshold != 0.6 {
		t.Errorf("unoverridden field keeps the defaults section: got=%v want=0.6", two.Threshold)
	}

	w := cfg.Keys[analog.KeyW]
	if w.ActuationPoint != 0.1 || w.VelocityScale != 8.5 || w.ShiftAmount != -12 {
		t.Errorf("w overrides: got=%+v", w)
	}
}

func TestParseOmittedListsKeepStockLists(t *testing.T) {
	cfg, err := Parse([]byte("keys:\n  q: {note: 60}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cfg.ToggleKeys) != 0 {
		t.Errorf("toggle keys: got=%v want none", cfg.ToggleKeys)
	}
	want := []analog.KeyCode{analog.KeyLeftShift, analog.KeyRightShift}
	if len(cfg.ModifierKeys) != len(want) ||
		cfg.ModifierKeys[0] != want[0] || cfg.ModifierKeys[1] != want[1] {
		t.Errorf("modifier keys: got=%v want=%v", cfg.ModifierKeys, want)
	}
}

func TestParseEmptyListClearsModifiers(t *testing.T) {
	cfg, err := Parse([]byte("modifier_keys: []\nkeys:\n  q: {note: 60}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cfg.ModifierKeys) != 0 {
		t.Errorf("modifier keys: got=%v want empty", cfg.ModifierKeys)
	}
}

func TestParseRejectsUnknownKeyNames(t *testing.T) {
	inputs := map[string]string{
		"in keys":          "keys:\n  num_lock: {note: 60}\n",
		"in toggle_keys":   "toggle_keys: [num_lock]\n",
		"in modifier_keys": "modifier_keys: [num_lock]\n",
	}
	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(content)); err == nil {
				t.Fatal("expected an error for an unknown key name")
			}
		})
	}
}

func TestParseRejectsOutOfRangeValues(t *testing.T) {
	inputs := map[string]string{
		"note too high":      "keys:\n  q: {note: 128}\n",
		"note negative":      "keys:\n  q: {note: -1}\n",
		"channel too high":   "keys:\n  q: {note: 60, channel: 16}\n",
		"threshold above 1":  "keys:\n  q: {note: 60, threshold: 1.5}\n",
		"actuation below 0":  "keys:\n  q: {note: 60, actuation_point: -0.2}\n",
		"zero scale":         "keys:\n  q: {note: 60, velocity_scale: 0}\n",
		"shift out of int8":  "keys:\n  q: {note: 60, shift_amount: 300}\n",
		"bad defaults entry": "defaults: {channel: 99}\nkeys:\n  q: {note: 60}\n",
	}
	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(content)); err == nil {
				t.Fatal("expected a range error")
			}
		})
	}
}

func TestParseReportsBrokenEntryByName(t *testing.T) {
	_, err := Parse([]byte("keys:\n  q: {note: 60}\n  w: {note: 200}\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "key w") {
		t.Errorf("error should name the entry: got=%q", err)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("keys: [not a map")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
