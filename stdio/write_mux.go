package stdio

import (
	"bufio"
	"sync"

	"github.com/ggoodman/dhan-mcp/internal/framing"
)

// writeMux serializes frames from concurrent dispatches onto one writer so
// that frames never interleave.
type writeMux struct {
	mu    sync.Mutex
	w     *bufio.Writer
	codec *framing.Codec
}

func (m *writeMux) writeJSONRPC(v any) error {
	frame, err := m.codec.Encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(frame); err != nil {
		return err
	}
	return m.w.Flush()
}
