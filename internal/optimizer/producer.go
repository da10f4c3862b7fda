package optimizer

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	MsgStarting = "optimization starting"
	MsgComplete = "optimization complete"
)

// Response is the structured answer of the optimization engine.
type Response struct {
	OriginalPrompt  string
	SuggestedPrompt string
	Guidelines      []AppliedGuideline
}

// AppliedGuideline is one guideline as returned by the engine, before
// translation and indexing.
type AppliedGuideline struct {
	Name       string
	Rationale  string
	TextBefore string
	TextAfter  string
}

type Optimizer interface {
	Optimize(ctx context.Context, prompt string) (*Response, error)
}

type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Producer turns one blocking optimize call into an ordered, finite
// sequence of events.
type Producer struct {
	optimizer  Optimizer
	translator Translator
	pace       time.Duration
	timeout    time.Duration
}

// NewProducer builds a Producer. pace spaces out consecutive events (0 emits
// them back to back); timeout bounds the optimize call (0 means no bound).
func NewProducer(opt Optimizer, tr Translator, pace, timeout time.Duration) *Producer {
	return &Producer{optimizer: opt, translator: tr, pace: pace, timeout: timeout}
}

// Events returns the event sequence for prompt. Nothing is called until the
// sequence is ranged over, and every range performs fresh external calls.
func (p *Producer) Events(ctx context.Context, prompt string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		runID := uuid.New().String()
		start := time.Now()
		limiter := p.limiter()

		emit := func(ev Event) bool {
			if err := limiter.Wait(ctx); err != nil {
				log.Debug().Err(err).Str("run_id", runID).Msg("pacing skipped")
			}
			return yield(ev)
		}

		if !emit(Status{Message: MsgStarting}) {
			return
		}

		resp, err := p.optimize(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Str("run_id", runID).Dur("duration", time.Since(start)).Msg("optimize call failed")
			emit(Error{Message: fmt.Sprintf("optimization failed: %v", err)})
			return
		}

		if !emit(OriginalPrompt{Content: resp.OriginalPrompt}) {
			return
		}
		if !emit(SuggestedPrompt{Content: resp.SuggestedPrompt}) {
			return
		}

		for i, g := range resp.Guidelines {
			improvement := p.translate(ctx, g.Rationale).OrElse(g.Rationale, func(err error) {
				log.Debug().Err(err).Str("run_id", runID).Int("index", i+1).Msg("translation failed, using original text")
			})
			ev := Guideline{
				Index:       i + 1,
				Name:        g.Name,
				Improvement: improvement,
				Before:      g.TextBefore,
				After:       g.TextAfter,
			}
			if !emit(ev) {
				return
			}
		}

		log.Info().
			Str("run_id", runID).
			Int("guidelines", len(resp.Guidelines)).
			Dur("duration", time.Since(start)).
			Msg("optimization finished")

		emit(Status{Message: MsgComplete})
	}
}

func (p *Producer) optimize(ctx context.Context, prompt string) (resp *Response, err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// A panicking client is still just a failed optimize call.
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("optimizer panic: %v", r)
		}
	}()

	resp, err = p.optimizer.Optimize(ctx, prompt)
	if err == nil && resp == nil {
		err = fmt.Errorf("empty optimizer response")
	}
	return resp, err
}

func (p *Producer) translate(ctx context.Context, text string) (res Result[string]) {
	if p.translator == nil {
		return Ok(text)
	}

	defer func() {
		if r := recover(); r != nil {
			res = Fail[string](fmt.Errorf("translator panic: %v", r))
		}
	}()

	return Try(p.translator.Translate(ctx, text))
}

func (p *Producer) limiter() *rate.Limiter {
	if p.pace <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.pace), 1)
}
