package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/roach88/storebridge/internal/protocol"
)

// Writer writes each forwarded envelope as one JSON line. DISCONNECT is
// consumed and writes nothing.
//
// Thread-safety: Post is safe for concurrent use; lines never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a JSON-lines transport over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Post encodes env and writes it followed by a newline.
func (t *Writer) Post(env protocol.Envelope) error {
	if !protocol.ForwardedToMonitors(env) {
		return nil
	}
	line, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", env.Tag(), err)
	}
	return nil
}
