package stream

import (
	"bytes"
	"strings"
)

// Parser maintains state across chunks to handle partial SSE lines.
type Parser struct {
	buffer     []byte
	eventIndex int
	eventType  string   // current event: field value
	data       []string // data: lines of the current event
	hasData    bool
}

func NewParser() *Parser {
	return &Parser{}
}

// ParseChunk processes raw bytes from the stream and returns complete frames.
// Handles partial lines that span multiple chunks.
func (p *Parser) ParseChunk(chunk []byte) []Frame {
	p.buffer = append(p.buffer, chunk...)
	var frames []Frame

	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx == -1 {
			break
		}

		line := string(p.buffer[:idx])
		p.buffer = p.buffer[idx+1:]
		line = strings.TrimRight(line, "\r")

		if line == "" {
			// Empty line = event separator
			if p.hasData {
				p.eventIndex++
				frames = append(frames, Frame{
					Index: p.eventIndex,
					Event: p.eventType,
					Data:  strings.Join(p.data, "\n"),
				})
			}
			p.eventType = ""
			p.data = nil
			p.hasData = false
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			p.eventType = strings.TrimSpace(value)
		case "data":
			p.data = append(p.data, value)
			p.hasData = true
		}
	}

	return frames
}
