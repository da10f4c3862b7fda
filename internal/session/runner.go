package session

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/optimizer"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrBusy        = errors.New("optimization already in progress")
)

// FailureMessage is shown when the run driver itself breaks, as opposed to
// the engine reporting an error.
const FailureMessage = "Something went wrong while optimizing. Please try again."

// Producer yields the events of one optimization run.
type Producer interface {
	Events(ctx context.Context, prompt string) iter.Seq[optimizer.Event]
}

// View renders session regions. Region renders always receive a Snapshot;
// a view never sees the raw event stream.
type View interface {
	ShowStatus(msg string)
	ShowError(msg string)
	ShowFailure(msg string)
	ClearStatus()
	RenderControls(s Snapshot)
	RenderResult(s Snapshot)
	RenderGuidelines(s Snapshot)
}

// Render redraws every persistent region of v from s.
func Render(v View, s Snapshot) {
	v.RenderControls(s)
	v.RenderResult(s)
	v.RenderGuidelines(s)
}

// Runner drives optimization runs for one session and folds their events
// into the session State.
type Runner struct {
	state    *State
	producer Producer
	view     View
	linger   time.Duration
}

// NewRunner wires a Runner. linger keeps the last status message on screen
// for a moment after the stream ends.
func NewRunner(state *State, producer Producer, view View, linger time.Duration) *Runner {
	return &Runner{state: state, producer: producer, view: view, linger: linger}
}

func (r *Runner) State() *State {
	return r.state
}

// Start checks the preconditions and, when they hold, marks the session as
// optimizing and drives the run in the background. The returned channel is
// closed once the run has fully settled. Runs cannot be cancelled, so ctx
// only contributes its values.
func (r *Runner) Start(ctx context.Context, prompt string) (<-chan struct{}, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if !r.state.begin() {
		return nil, ErrBusy
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.drive(context.WithoutCancel(ctx), prompt)
	}()
	return done, nil
}

// Run is Start followed by waiting for the run to settle.
func (r *Runner) Run(ctx context.Context, prompt string) error {
	done, err := r.Start(ctx, prompt)
	if err != nil {
		return err
	}
	<-done
	return nil
}

func (r *Runner) drive(ctx context.Context, prompt string) {
	runID := uuid.New().String()
	start := time.Now()
	log.Debug().Str("run_id", runID).Int("prompt_len", len(prompt)).Msg("run started")

	defer func() {
		r.state.finish()
		r.safely(runID, func() { r.view.RenderControls(r.state.Snapshot()) })
		log.Info().Str("run_id", runID).Dur("duration", time.Since(start)).Msg("run settled")
	}()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("run_id", runID).Interface("panic", rec).Msg("run driver fault")
			r.safely(runID, func() { r.view.ShowFailure(FailureMessage) })
		}
	}()

	Render(r.view, r.state.Snapshot())

	for ev := range r.producer.Events(ctx, prompt) {
		r.apply(ev)
	}

	if r.linger > 0 {
		time.Sleep(r.linger)
	}
	r.view.ClearStatus()
}

func (r *Runner) apply(ev optimizer.Event) {
	switch ev := ev.(type) {
	case optimizer.Status:
		r.view.ShowStatus(ev.Message)
	case optimizer.SuggestedPrompt:
		r.state.setResult(ev.Content)
		r.view.RenderResult(r.state.Snapshot())
	case optimizer.Guideline:
		r.state.appendGuideline(ev)
		r.view.RenderGuidelines(r.state.Snapshot())
	case optimizer.Error:
		r.view.ShowError(ev.Message)
	case optimizer.OriginalPrompt:
		// informational only
	}
}

// safely runs a view call on an exit path, where a panic must not escape.
func (r *Runner) safely(runID string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("run_id", runID).Interface("panic", rec).Msg("view fault on exit path")
		}
	}()
	fn()
}
