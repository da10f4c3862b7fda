package web

import (
	"bytes"
	"context"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/eventbus"
	"github.com/namikmesic/promptopt/internal/session"
	"github.com/namikmesic/promptopt/internal/stream"
	"github.com/rs/zerolog/log"
)

// frameView renders session regions into SSE frames and hands each frame to
// sink. It implements session.View.
type frameView struct {
	sink func(stream.Frame)
}

func (v frameView) emit(region string, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		log.Error().Err(err).Str("region", region).Msg("failed to render region")
		return
	}
	v.sink(stream.Frame{Event: region, Data: buf.String()})
}

func (v frameView) ShowStatus(msg string)  { v.emit(regionStatus, StatusInfo(msg)) }
func (v frameView) ShowError(msg string)   { v.emit(regionStatus, StatusError(msg)) }
func (v frameView) ShowFailure(msg string) { v.emit(regionStatus, StatusFailure(msg)) }
func (v frameView) ClearStatus()           { v.emit(regionStatus, StatusEmpty()) }

func (v frameView) RenderControls(s session.Snapshot)   { v.emit(regionControls, Controls(s)) }
func (v frameView) RenderResult(s session.Snapshot)     { v.emit(regionResult, Result(s)) }
func (v frameView) RenderGuidelines(s session.Snapshot) { v.emit(regionGuidelines, Guidelines(s)) }

// NewBusView returns the view a session's Runner draws into. Frames go out on
// the session's bus subject to every open /events stream of that session.
func NewBusView(bus *eventbus.Bus, sessionID uuid.UUID) session.View {
	return frameView{sink: func(f stream.Frame) {
		if err := bus.Publish(sessionID, f); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Str("region", f.Event).Msg("failed to publish frame")
		}
	}}
}

// snapshotFrames renders every persistent region from s.
func snapshotFrames(s session.Snapshot) []stream.Frame {
	var frames []stream.Frame
	session.Render(frameView{sink: func(f stream.Frame) { frames = append(frames, f) }}, s)
	return frames
}
