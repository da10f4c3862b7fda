package stream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Frame is a single SSE event.
type Frame struct {
	Index int    // ordinal within the stream, set by the parser
	Event string // event: field; empty means the default "message"
	Data  string // data: payload, lines joined with \n
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Encoder writes frames to an SSE response, flushing after each one.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	flusher, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: flusher}
}

func (e *Encoder) Encode(f Frame) error {
	var sb strings.Builder
	if f.Event != "" {
		fmt.Fprintf(&sb, "event: %s\n", f.Event)
	}
	// Every line of a multi-line payload needs its own data: field. Clients
	// break lines on \r as well as \n.
	for _, line := range strings.Split(lineEndings.Replace(f.Data), "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	if _, err := io.WriteString(e.w, sb.String()); err != nil {
		return err
	}
	e.flush()
	return nil
}

// Retry sets how long the client waits before reconnecting after the
// stream ends.
func (e *Encoder) Retry(d time.Duration) error {
	if _, err := fmt.Fprintf(e.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	e.flush()
	return nil
}

// Comment writes an SSE comment line, used as a keepalive.
func (e *Encoder) Comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	e.flush()
	return nil
}

func (e *Encoder) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
