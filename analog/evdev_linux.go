//go:build linux

package analog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/holoplot/go-evdev"
)

// evdev speaks KEY_* codes, the engine speaks HID usage IDs. The table
// covers every key ParseKeyName knows about.
var evdevToHID = map[evdev.EvCode]KeyCode{
	evdev.KEY_A: KeyA, evdev.KEY_B: KeyB, evdev.KEY_C: KeyC, evdev.KEY_D: KeyD,
	evdev.KEY_E: KeyE, evdev.KEY_F: KeyF, evdev.KEY_G: KeyG, evdev.KEY_H: KeyH,
	evdev.KEY_I: KeyI, evdev.KEY_J: KeyJ, evdev.KEY_K: KeyK, evdev.KEY_L: KeyL,
	evdev.KEY_M: KeyM, evdev.KEY_N: KeyN, evdev.KEY_O: KeyO, evdev.KEY_P: KeyP,
	evdev.KEY_Q: KeyQ, evdev.KEY_R: KeyR, evdev.KEY_S: KeyS, evdev.KEY_T: KeyT,
	evdev.KEY_U: KeyU, evdev.KEY_V: KeyV, evdev.KEY_W: KeyW, evdev.KEY_X: KeyX,
	evdev.KEY_Y: KeyY, evdev.KEY_Z: KeyZ,

	evdev.KEY_1: Key1, evdev.KEY_2: Key2, evdev.KEY_3: Key3, evdev.KEY_4: Key4,
	evdev.KEY_5: Key5, evdev.KEY_6: Key6, evdev.KEY_7: Key7, evdev.KEY_8: Key8,
	evdev.KEY_9: Key9, evdev.KEY_0: Key0,

	evdev.KEY_ENTER:      KeyEnter,
	evdev.KEY_ESC:        KeyEscape,
	evdev.KEY_BACKSPACE:  KeyBackspace,
	evdev.KEY_TAB:        KeyTab,
	evdev.KEY_SPACE:      KeySpace,
	evdev.KEY_MINUS:      KeyMinus,
	evdev.KEY_EQUAL:      KeyEqual,
	evdev.KEY_LEFTBRACE:  KeyLeftBrace,
	evdev.KEY_RIGHTBRACE: KeyRightBrace,

	evdev.KEY_F1: KeyF1, evdev.KEY_F2: KeyF2, evdev.KEY_F3: KeyF3,
	evdev.KEY_F4: KeyF4, evdev.KEY_F5: KeyF5, evdev.KEY_F6: KeyF6,
	evdev.KEY_F7: KeyF7, evdev.KEY_F8: KeyF8, evdev.KEY_F9: KeyF9,
	evdev.KEY_F10: KeyF10, evdev.KEY_F11: KeyF11, evdev.KEY_F12: KeyF12,

	evdev.KEY_LEFTCTRL:   KeyLeftCtrl,
	evdev.KEY_LEFTSHIFT:  KeyLeftShift,
	evdev.KEY_LEFTALT:    KeyLeftAlt,
	evdev.KEY_LEFTMETA:   KeyLeftMeta,
	evdev.KEY_RIGHTCTRL:  KeyRightCtrl,
	evdev.KEY_RIGHTSHIFT: KeyRightShift,
	evdev.KEY_RIGHTALT:   KeyRightAlt,
	evdev.KEY_RIGHTMETA:  KeyRightMeta,
}

// EvdevSource turns a plain keyboard into a binary depth source: pressed
// keys report depth 1, released keys drop out of the snapshot. It exists so
// the pipeline can run without analog-sensing hardware; velocity estimation
// saturates at the clamp ceiling because travel appears instantaneous.
type EvdevSource struct {
	dev    *evdev.InputDevice
	logger *slog.Logger

	mu     sync.Mutex
	depths Snapshot
	err    error

	done chan struct{}
}

// OpenEvdev opens an input device (e.g. /dev/input/event3) and starts
// tracking its key state.
func OpenEvdev(path string) (*EvdevSource, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input device %s: %w", path, err)
	}
	src := &EvdevSource{
		dev:    dev,
		logger: slog.Default(),
		depths: make(Snapshot),
		done:   make(chan struct{}),
	}
	if name, err := dev.Name(); err == nil {
		src.logger.Info("analog: evdev fallback attached", "path", path, "device", name)
	}
	go src.run()
	return src, nil
}

func (s *EvdevSource) run() {
	defer close(s.done)
	for {
		ev, err := s.dev.ReadOne()
		if err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("evdev read: %w", err)
			s.mu.Unlock()
			return
		}
		s.handle(ev)
	}
}

func (s *EvdevSource) handle(ev *evdev.InputEvent) {
	if ev.Type != evdev.EV_KEY {
		return
	}
	code, ok := evdevToHID[ev.Code]
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Value {
	case 0:
		delete(s.depths, code)
	case 1:
		s.depths[code] = 1
	}
	// 2 is autorepeat, which carries no new state.
}

// ReadSnapshot returns a copy of the current key state with at most max
// entries. It fails once the device has failed.
func (s *EvdevSource) ReadSnapshot(max int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(Snapshot, len(s.depths))
	for code, depth := range s.depths {
		if max > 0 && len(out) >= max {
			break
		}
		out[code] = depth
	}
	return out, nil
}

// Close closes the device and waits for the read goroutine to stop.
func (s *EvdevSource) Close() error {
	err := s.dev.Close()
	<-s.done
	return err
}
