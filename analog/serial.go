package analog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Bridge frame grammar, shared with the firmware:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD plus payload, CKS is the XOR of LEN, CMD and every payload
// byte. A depth report payload is a run of 3-byte entries: usage ID high
// byte, usage ID low byte, depth scaled to 0..255. Depth 0 clears the key.
const (
	sofA           = 0xAA
	sofB           = 0x55
	cmdDepthReport = 0x01
)

type depthEntry struct {
	code  KeyCode
	depth float32
}

// frameScanner incrementally decodes bridge frames from a byte stream.
type frameScanner struct {
	r *bufio.Reader
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: bufio.NewReader(r)}
}

// next returns the entries of the next well-formed depth report. Garbage
// between frames, checksum failures, unknown commands and malformed payloads
// are skipped; only stream errors surface.
func (fs *frameScanner) next() ([]depthEntry, error) {
	for {
		b, err := fs.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != sofA {
			continue
		}
		b, err = fs.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != sofB {
			if b == sofA {
				// The second SOF0 may start a real frame.
				_ = fs.r.UnreadByte()
			}
			continue
		}
		length, err := fs.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, int(length)+1) // CMD + payload + CKS
		if _, err := io.ReadFull(fs.r, buf); err != nil {
			return nil, err
		}
		cks := length
		for _, x := range buf[:length] {
			cks ^= x
		}
		if cks != buf[length] {
			continue
		}
		if buf[0] != cmdDepthReport {
			continue
		}
		payload := buf[1:length]
		if len(payload)%3 != 0 {
			continue
		}
		entries := make([]depthEntry, 0, len(payload)/3)
		for i := 0; i+2 < len(payload); i += 3 {
			entries = append(entries, depthEntry{
				code:  KeyCode(uint16(payload[i])<<8 | uint16(payload[i+1])),
				depth: float32(payload[i+2]) / 255,
			})
		}
		return entries, nil
	}
}

// SerialSource reads depth reports from an analog bridge attached over a
// serial port and keeps the most recent depth per key. A background
// goroutine owns the stream; ReadSnapshot hands out copies.
type SerialSource struct {
	port   io.ReadCloser
	logger *slog.Logger

	mu     sync.Mutex
	depths Snapshot
	err    error

	done chan struct{}
}

// OpenSerial opens the named serial device at the given baud rate and starts
// decoding depth reports from it.
func OpenSerial(device string, baud int) (*SerialSource, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open analog bridge %s: %w", device, err)
	}
	src := NewSerialSource(port)
	src.logger.Info("analog: bridge opened", "device", device, "baud", baud)
	return src, nil
}

// NewSerialSource decodes depth reports from an already-open stream. Split
// out from OpenSerial so other transports can feed the same decoder.
func NewSerialSource(stream io.ReadCloser) *SerialSource {
	src := &SerialSource{
		port:   stream,
		logger: slog.Default(),
		depths: make(Snapshot),
		done:   make(chan struct{}),
	}
	go src.run()
	return src
}

func (s *SerialSource) run() {
	defer close(s.done)
	fs := newFrameScanner(s.port)
	for {
		entries, err := fs.next()
		if err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("analog bridge: %w", err)
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		for _, e := range entries {
			if e.depth <= 0 {
				delete(s.depths, e.code)
			} else {
				s.depths[e.code] = e.depth
			}
		}
		s.mu.Unlock()
	}
}

// ReadSnapshot returns a copy of the latest per-key depths with at most max
// entries. It fails once the underlying stream has failed.
func (s *SerialSource) ReadSnapshot(max int) (Snapshot, error) {
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

// Close closes the stream and waits for the decode goroutine to stop.
func (s *SerialSource) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}
