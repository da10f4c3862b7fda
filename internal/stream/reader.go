package stream

import (
	"errors"
	"io"
	"iter"
)

// Read yields the frames of an SSE body as they arrive. The sequence ends at
// EOF; any other read error is yielded once and ends it.
func Read(r io.Reader) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		p := NewParser()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			for _, f := range p.ParseChunk(buf[:n]) {
				if !yield(f, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
		}
	}
}
