package session

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/namikmesic/promptopt/internal/optimizer"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu      sync.Mutex
	calls   int
	events  []optimizer.Event
	release chan struct{}
	panicAt int
}

func (p *fakeProducer) Events(ctx context.Context, prompt string) iter.Seq[optimizer.Event] {
	p.mu.Lock()
	p.calls++
	events := p.events
	p.mu.Unlock()

	return func(yield func(optimizer.Event) bool) {
		if p.release != nil {
			<-p.release
		}
		for i, ev := range events {
			if p.panicAt > 0 && i+1 == p.panicAt {
				panic("producer exploded")
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (p *fakeProducer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingView struct {
	mu    sync.Mutex
	state *State

	calls            []string
	statuses         []string
	errors           []string
	failures         []string
	results          []*string
	guidelineRenders [][]optimizer.Guideline
	optimizingSeen   []bool
	panicOn          string
}

func (v *recordingView) record(call string) {
	v.mu.Lock()
	v.calls = append(v.calls, call)
	if v.state != nil {
		v.optimizingSeen = append(v.optimizingSeen, v.state.IsOptimizing())
	}
	panicOn := v.panicOn
	v.mu.Unlock()

	if call == panicOn {
		panic("view exploded in " + call)
	}
}

func (v *recordingView) ShowStatus(msg string) {
	v.mu.Lock()
	v.statuses = append(v.statuses, msg)
	v.mu.Unlock()
	v.record("status")
}

func (v *recordingView) ShowError(msg string) {
	v.mu.Lock()
	v.errors = append(v.errors, msg)
	v.mu.Unlock()
	v.record("error")
}

func (v *recordingView) ShowFailure(msg string) {
	v.mu.Lock()
	v.failures = append(v.failures, msg)
	v.mu.Unlock()
	v.record("failure")
}

func (v *recordingView) ClearStatus() { v.record("clear") }

func (v *recordingView) RenderControls(s Snapshot) { v.record("controls") }

func (v *recordingView) RenderResult(s Snapshot) {
	v.mu.Lock()
	v.results = append(v.results, s.Result)
	v.mu.Unlock()
	v.record("result")
}

func (v *recordingView) RenderGuidelines(s Snapshot) {
	v.mu.Lock()
	v.guidelineRenders = append(v.guidelineRenders, s.Guidelines)
	v.mu.Unlock()
	v.record("guidelines")
}

func newTestRunner(p *fakeProducer) (*Runner, *recordingView) {
	state := NewState()
	view := &recordingView{state: state}
	return NewRunner(state, p, view, 0), view
}

func guideline(i int, name string) optimizer.Guideline {
	return optimizer.Guideline{Index: i, Name: name, Improvement: name + " why", Before: "b", After: "a"}
}

func successEvents(suggestion string, guidelines ...optimizer.Guideline) []optimizer.Event {
	events := []optimizer.Event{
		optimizer.Status{Message: optimizer.MsgStarting},
		optimizer.OriginalPrompt{Content: "orig"},
		optimizer.SuggestedPrompt{Content: suggestion},
	}
	for _, g := range guidelines {
		events = append(events, g)
	}
	return append(events, optimizer.Status{Message: optimizer.MsgComplete})
}

func TestRunnerEndToEnd(t *testing.T) {
	g := optimizer.Guideline{
		Index:       1,
		Name:        "Specificity",
		Improvement: "Add explicit output format.",
		Before:      "Summarize this.",
		After:       "Please provide a concise summary...",
	}
	p := &fakeProducer{events: successEvents("Please provide a concise summary of the following text.", g)}
	r, view := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), "Summarize this."))

	snap := r.State().Snapshot()
	require.False(t, snap.IsOptimizing)
	require.NotNil(t, snap.Result)
	require.Equal(t, "Please provide a concise summary of the following text.", *snap.Result)
	require.Equal(t, []optimizer.Guideline{g}, snap.Guidelines)

	require.Equal(t, []string{optimizer.MsgStarting, optimizer.MsgComplete}, view.statuses)
	require.Equal(t, "clear", view.calls[len(view.calls)-2])
	require.Equal(t, "controls", view.calls[len(view.calls)-1])
	require.Empty(t, view.errors)
	require.Empty(t, view.failures)
}

func TestRunnerGuidelineRendersFollowEmissionOrder(t *testing.T) {
	gs := []optimizer.Guideline{guideline(1, "a"), guideline(2, "b"), guideline(3, "c"), guideline(4, "d")}
	p := &fakeProducer{events: successEvents("s", gs...)}
	r, view := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), "x"))

	// first render is the reset, then one full render per appended guideline
	require.Len(t, view.guidelineRenders, len(gs)+1)
	require.Empty(t, view.guidelineRenders[0])
	for i, rendered := range view.guidelineRenders[1:] {
		require.Equal(t, gs[:i+1], rendered)
	}
	require.Equal(t, gs, r.State().Snapshot().Guidelines)
}

func TestRunnerIsOptimizingDuringEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		events  []optimizer.Event
		panicAt int
		panicOn string
	}{
		{name: "success", events: successEvents("s", guideline(1, "a"))},
		{name: "reported error", events: []optimizer.Event{
			optimizer.Status{Message: optimizer.MsgStarting},
			optimizer.Error{Message: "optimization failed: denied"},
		}},
		{name: "producer fault", events: successEvents("s", guideline(1, "a")), panicAt: 3},
		{name: "view fault", events: successEvents("s", guideline(1, "a")), panicOn: "guidelines"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProducer{events: tc.events, panicAt: tc.panicAt}
			r, view := newTestRunner(p)
			view.panicOn = tc.panicOn

			require.NoError(t, r.Run(context.Background(), "x"))

			require.False(t, r.State().IsOptimizing())
			// every call but the final controls render happens inside the run
			seen := view.optimizingSeen
			require.NotEmpty(t, seen)
			for i, optimizing := range seen[:len(seen)-1] {
				require.True(t, optimizing, "call %d (%s) saw isOptimizing=false", i, view.calls[i])
			}
			require.False(t, seen[len(seen)-1])

			done, err := r.Start(context.Background(), "again")
			require.NoError(t, err)
			<-done
		})
	}
}

func TestRunnerReportedErrorLeavesStateEmpty(t *testing.T) {
	p := &fakeProducer{events: []optimizer.Event{
		optimizer.Status{Message: optimizer.MsgStarting},
		optimizer.Error{Message: "optimization failed: quota"},
	}}
	r, view := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), "x"))

	snap := r.State().Snapshot()
	require.Nil(t, snap.Result)
	require.Empty(t, snap.Guidelines)
	require.Equal(t, []string{"optimization failed: quota"}, view.errors)
	require.Empty(t, view.failures)
	require.Contains(t, view.calls, "clear")
}

func TestRunnerDriverFaultShowsGenericFailure(t *testing.T) {
	p := &fakeProducer{events: successEvents("s", guideline(1, "a")), panicAt: 4}
	r, view := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), "x"))

	require.Equal(t, []string{FailureMessage}, view.failures)
	require.Empty(t, view.errors)
	require.False(t, r.State().IsOptimizing())
}

func TestRunnerFaultOnExitPathStillResetsFlag(t *testing.T) {
	p := &fakeProducer{events: successEvents("s"), panicAt: 1}
	r, view := newTestRunner(p)
	view.panicOn = "failure"

	require.NoError(t, r.Run(context.Background(), "x"))
	require.False(t, r.State().IsOptimizing())
}

func TestRunnerClearsPreviousRun(t *testing.T) {
	p := &fakeProducer{events: successEvents("A", guideline(1, "first"))}
	r, view := newTestRunner(p)
	require.NoError(t, r.Run(context.Background(), "one"))
	require.Len(t, r.State().Snapshot().Guidelines, 1)

	p.mu.Lock()
	p.events = successEvents("B")
	p.mu.Unlock()
	view.results = nil

	require.NoError(t, r.Run(context.Background(), "two"))

	snap := r.State().Snapshot()
	require.Empty(t, snap.Guidelines)
	require.NotNil(t, snap.Result)
	require.Equal(t, "B", *snap.Result)
	// the reset render precedes any event of the second run
	require.Nil(t, view.results[0])
}

func TestRunnerRejectsOverlappingRuns(t *testing.T) {
	p := &fakeProducer{events: successEvents("s"), release: make(chan struct{})}
	r, _ := newTestRunner(p)

	done, err := r.Start(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, r.State().IsOptimizing())

	for range 3 {
		_, err := r.Start(context.Background(), "x")
		require.ErrorIs(t, err, ErrBusy)
	}

	close(p.release)
	<-done

	require.Equal(t, 1, p.callCount())
	require.False(t, r.State().IsOptimizing())
}

func TestRunnerRejectsEmptyPrompt(t *testing.T) {
	p := &fakeProducer{events: successEvents("s")}
	r, view := newTestRunner(p)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		require.ErrorIs(t, r.Run(context.Background(), prompt), ErrEmptyPrompt)
	}
	require.Equal(t, 0, p.callCount())
	require.Empty(t, view.calls)
	require.False(t, r.State().IsOptimizing())
}

func TestRunnerIgnoresCallerCancellation(t *testing.T) {
	p := &fakeProducer{events: successEvents("s", guideline(1, "a")), release: make(chan struct{})}
	r, _ := newTestRunner(p)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := r.Start(ctx, "x")
	require.NoError(t, err)
	cancel()
	close(p.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not settle")
	}
	require.Len(t, r.State().Snapshot().Guidelines, 1)
}

func TestRenderReconstructsFromState(t *testing.T) {
	p := &fakeProducer{events: successEvents("s", guideline(1, "a"), guideline(2, "b"))}
	r, _ := newTestRunner(p)
	require.NoError(t, r.Run(context.Background(), "x"))

	fresh := &recordingView{}
	Render(fresh, r.State().Snapshot())
	Render(fresh, r.State().Snapshot())

	require.Equal(t, []string{"controls", "result", "guidelines", "controls", "result", "guidelines"}, fresh.calls)
	require.Equal(t, fresh.guidelineRenders[0], fresh.guidelineRenders[1])
	require.Len(t, fresh.guidelineRenders[1], 2)
	require.Equal(t, 1, p.callCount())
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewState()
	require.True(t, s.begin())
	s.setResult("r")
	s.appendGuideline(guideline(1, "a"))

	snap := s.Snapshot()
	*snap.Result = "changed"
	snap.Guidelines[0].Name = "changed"

	again := s.Snapshot()
	require.Equal(t, "r", *again.Result)
	require.Equal(t, "a", again.Guidelines[0].Name)
	require.False(t, s.begin())
}
