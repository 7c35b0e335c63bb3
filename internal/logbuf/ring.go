// Package logbuf captures log output in memory so a full-screen terminal UI
// can show it without the lines tearing the display.
package logbuf

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Ring is a thread-safe ring buffer that stores the last N lines written to
// it. It implements io.Writer, so it can sit behind a slog handler.
type Ring struct {
	mu    sync.Mutex
	lines []string
	size  int
	pos   int
	full  bool
	// partial holds an incomplete line (no trailing newline yet)
	partial bytes.Buffer

	updated chan struct{}
}

// New creates a ring buffer that stores the last n lines.
func New(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{
		lines:   make([]string, n),
		size:    n,
		updated: make(chan struct{}, 1),
	}
}

// Write implements io.Writer. Splits input on newlines and stores each line.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)

	added := false
	for {
		line, err := r.partial.ReadString('\n')
		if err != nil {
			// No more complete lines, put the partial back
			r.partial.Reset()
			r.partial.WriteString(line)
			break
		}
		r.addLine(strings.TrimRight(line, "\r\n"))
		added = true
	}

	if added {
		select {
		case r.updated <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (r *Ring) addLine(line string) {
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % r.size
	if r.pos == 0 {
		r.full = true
	}
}

// Updated returns a channel that receives a value after new lines arrive.
// Bursts of writes coalesce into one signal.
func (r *Ring) Updated() <-chan struct{} {
	return r.updated
}

// Lines returns all stored lines in order, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		result := make([]string, r.pos)
		copy(result, r.lines[:r.pos])
		return result
	}

	result := make([]string, r.size)
	copy(result, r.lines[r.pos:])
	copy(result[r.size-r.pos:], r.lines[:r.pos])
	return result
}

// Last returns the last n lines. If fewer lines exist, returns all of them.
func (r *Ring) Last(n int) []string {
	all := r.Lines()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Logger returns a text logger writing into the ring at the given level.
func (r *Ring) Logger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(r, &slog.HandlerOptions{Level: level}))
}
