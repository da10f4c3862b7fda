package stream

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeThenParse(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(Frame{Event: "status", Data: "optimization starting"}))
	require.NoError(t, enc.Comment("keepalive"))
	require.NoError(t, enc.Encode(Frame{Event: "guidelines", Data: "<ol>\n<li>a</li>\r\n</ol>"}))
	require.NoError(t, enc.Encode(Frame{Data: "plain"}))

	require.Equal(t,
		"event: status\ndata: optimization starting\n\n"+
			": keepalive\n\n"+
			"event: guidelines\ndata: <ol>\ndata: <li>a</li>\ndata: </ol>\n\n"+
			"data: plain\n\n",
		buf.String())

	frames := NewParser().ParseChunk(buf.Bytes())
	require.Equal(t, []Frame{
		{Index: 1, Event: "status", Data: "optimization starting"},
		{Index: 2, Event: "guidelines", Data: "<ol>\n<li>a</li>\n</ol>"},
		{Index: 3, Data: "plain"},
	}, frames)
}

func TestParserHandlesSplitChunks(t *testing.T) {
	raw := []byte("event: result\ndata: {\"a\":1}\n\nevent: controls\r\ndata:x\r\n\r\n")
	p := NewParser()

	var frames []Frame
	for i := 0; i < len(raw); i += 3 {
		end := min(i+3, len(raw))
		frames = append(frames, p.ParseChunk(raw[i:end])...)
	}

	require.Equal(t, []Frame{
		{Index: 1, Event: "result", Data: `{"a":1}`},
		{Index: 2, Event: "controls", Data: "x"},
	}, frames)
}

func TestParserIgnoresEventWithoutData(t *testing.T) {
	frames := NewParser().ParseChunk([]byte("event: lonely\n\n: comment\n\n"))
	require.Empty(t, frames)
}

func TestEncoderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	require.NoError(t, enc.Encode(Frame{Event: "status", Data: "x"}))
	require.True(t, rec.Flushed)
}

func TestEncodeNormalizesLineEndings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Frame{Event: "result", Data: "one\rtwo\r\nthree\nfour"}))

	require.Equal(t, "event: result\ndata: one\ndata: two\ndata: three\ndata: four\n\n", buf.String())
	require.NotContains(t, buf.String(), "\r")

	frames := NewParser().ParseChunk(buf.Bytes())
	require.Len(t, frames, 1)
	require.Equal(t, "one\ntwo\nthree\nfour", frames[0].Data)
}

func TestRetryIsNotAFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Retry(500*time.Millisecond))
	require.NoError(t, enc.Encode(Frame{Event: "controls", Data: "x"}))

	require.True(t, strings.HasPrefix(buf.String(), "retry: 500\n\n"))
	frames := NewParser().ParseChunk(buf.Bytes())
	require.Equal(t, []Frame{{Index: 1, Event: "controls", Data: "x"}}, frames)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadYieldsFramesUntilEOF(t *testing.T) {
	body := strings.NewReader("retry: 500\n\nevent: status\ndata: a\n\n: keepalive\n\nevent: result\ndata: b\n\n")

	var got []Frame
	for f, err := range Read(body) {
		require.NoError(t, err)
		got = append(got, f)
	}
	require.Equal(t, []Frame{
		{Index: 1, Event: "status", Data: "a"},
		{Index: 2, Event: "result", Data: "b"},
	}, got)
}

func TestReadReportsBrokenStream(t *testing.T) {
	broken := errors.New("connection reset")
	r := &failingReader{data: []byte("event: status\ndata: a\n\nevent: result\ndata: par"), err: broken}

	var frames []Frame
	var errs []error
	for f, err := range Read(r) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
	require.Len(t, frames, 1)
	require.Equal(t, []error{broken}, errs)
}
