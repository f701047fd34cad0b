package mirror

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// WriterConsole writes newline-terminated lines to w (a UART, stdout, a
// test buffer).
type WriterConsole struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterConsole(w io.Writer) *WriterConsole { return &WriterConsole{w: w} }

func (c *WriterConsole) WriteLine(line string) {
	c.mu.Lock()
	_, _ = io.WriteString(c.w, line+"\n")
	c.mu.Unlock()
}

// LogConsole emits each line as an info event.
type LogConsole struct {
	log zerolog.Logger
}

func NewLogConsole(log zerolog.Logger) LogConsole {
	return LogConsole{log: log.With().Str("component", "console").Logger()}
}

func (c LogConsole) WriteLine(line string) { c.log.Info().Msg(line) }
