package analog

import (
	"fmt"
	"strings"
)

// Keyboard-page HID usage IDs for the keys the built-in layout and mapping
// files can name.
const (
	KeyA KeyCode = 0x04
	KeyB KeyCode = 0x05
	KeyC KeyCode = 0x06
	KeyD KeyCode = 0x07
	KeyE KeyCode = 0x08
	KeyF KeyCode = 0x09
	KeyG KeyCode = 0x0A
	KeyH KeyCode = 0x0B
	KeyI KeyCode = 0x0C
	KeyJ KeyCode = 0x0D
	KeyK KeyCode = 0x0E
	KeyL KeyCode = 0x0F
	KeyM KeyCode = 0x10
	KeyN KeyCode = 0x11
	KeyO KeyCode = 0x12
	KeyP KeyCode = 0x13
	KeyQ KeyCode = 0x14
	KeyR KeyCode = 0x15
	KeyS KeyCode = 0x16
	KeyT KeyCode = 0x17
	KeyU KeyCode = 0x18
	KeyV KeyCode = 0x19
	KeyW KeyCode = 0x1A
	KeyX KeyCode = 0x1B
	KeyY KeyCode = 0x1C
	KeyZ KeyCode = 0x1D

	Key1 KeyCode = 0x1E
	Key2 KeyCode = 0x1F
	Key3 KeyCode = 0x20
	Key4 KeyCode = 0x21
	Key5 KeyCode = 0x22
	Key6 KeyCode = 0x23
	Key7 KeyCode = 0x24
	Key8 KeyCode = 0x25
	Key9 KeyCode = 0x26
	Key0 KeyCode = 0x27

	KeyEnter      KeyCode = 0x28
	KeyEscape     KeyCode = 0x29
	KeyBackspace  KeyCode = 0x2A
	KeyTab        KeyCode = 0x2B
	KeySpace      KeyCode = 0x2C
	KeyMinus      KeyCode = 0x2D
	KeyEqual      KeyCode = 0x2E
	KeyLeftBrace  KeyCode = 0x2F
	KeyRightBrace KeyCode = 0x30

	KeyF1  KeyCode = 0x3A
	KeyF2  KeyCode = 0x3B
	KeyF3  KeyCode = 0x3C
	KeyF4  KeyCode = 0x3D
	KeyF5  KeyCode = 0x3E
	KeyF6  KeyCode = 0x3F
	KeyF7  KeyCode = 0x40
	KeyF8  KeyCode = 0x41
	KeyF9  KeyCode = 0x42
	KeyF10 KeyCode = 0x43
	KeyF11 KeyCode = 0x44
	KeyF12 KeyCode = 0x45

	KeyLeftCtrl   KeyCode = 0xE0
	KeyLeftShift  KeyCode = 0xE1
	KeyLeftAlt    KeyCode = 0xE2
	KeyLeftMeta   KeyCode = 0xE3
	KeyRightCtrl  KeyCode = 0xE4
	KeyRightShift KeyCode = 0xE5
	KeyRightAlt   KeyCode = 0xE6
	KeyRightMeta  KeyCode = 0xE7
)

var keyNames = map[KeyCode]string{
	KeyA: "a", KeyB: "b", KeyC: "c", KeyD: "d", KeyE: "e", KeyF: "f",
	KeyG: "g", KeyH: "h", KeyI: "i", KeyJ: "j", KeyK: "k", KeyL: "l",
	KeyM: "m", KeyN: "n", KeyO: "o", KeyP: "p", KeyQ: "q", KeyR: "r",
	KeyS: "s", KeyT: "t", KeyU: "u", KeyV: "v", KeyW: "w", KeyX: "x",
	KeyY: "y", KeyZ: "z",

	Key1: "1", Key2: "2", Key3: "3", Key4: "4", Key5: "5",
	Key6: "6", Key7: "7", Key8: "8", Key9: "9", Key0: "0",

	KeyEnter:      "enter",
	KeyEscape:     "escape",
	KeyBackspace:  "backspace",
	KeyTab:        "tab",
	KeySpace:      "space",
	KeyMinus:      "minus",
	KeyEqual:      "equal",
	KeyLeftBrace:  "left_brace",
	KeyRightBrace: "right_brace",

	KeyF1: "f1", KeyF2: "f2", KeyF3: "f3", KeyF4: "f4",
	KeyF5: "f5", KeyF6: "f6", KeyF7: "f7", KeyF8: "f8",
	KeyF9: "f9", KeyF10: "f10", KeyF11: "f11", KeyF12: "f12",

	KeyLeftCtrl:   "left_ctrl",
	KeyLeftShift:  "left_shift",
	KeyLeftAlt:    "left_alt",
	KeyLeftMeta:   "left_meta",
	KeyRightCtrl:  "right_ctrl",
	KeyRightShift: "right_shift",
	KeyRightAlt:   "right_alt",
	KeyRightMeta:  "right_meta",
}

var namesToKey = func() map[string]KeyCode {
	m := make(map[string]KeyCode, len(keyNames))
	for code, name := range keyNames {
		m[name] = code
	}
	return m
}()

// String returns the mapping-file name of the key, or the usage ID in hex
// for keys without one.
func (c KeyCode) String() string {
	if name, ok := keyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint16(c))
}

// ParseKeyName resolves a mapping-file key name ("q", "f12", "left_shift")
// to its usage ID. Names are case-insensitive.
func ParseKeyName(name string) (KeyCode, error) {
	if code, ok := namesToKey[strings.ToLower(name)]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key name %q", name)
}
