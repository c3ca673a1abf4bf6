package fallback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/llm/middleware"
)

// stream opens a streaming call and waits for its first chunk. Failures up to
// that point are classified like any other attempt error so the chain can
// still advance. After the first chunk the stream belongs to the caller: a
// later provider error is forwarded as a terminal chunk and nothing is retried.
func (o *Orchestrator) stream(ctx context.Context, h *llm.Handle, req *llm.ChatRequest, policy *Policy) attemptResult {
	sctx, cancel := context.WithCancelCause(ctx)

	var timer *time.Timer
	if policy.AttemptTimeout > 0 {
		timer = time.AfterFunc(policy.AttemptTimeout, func() { cancel(errAttemptTimeout) })
	}
	fail := func(err error) attemptResult {
		if timer != nil {
			timer.Stop()
		}
		res := o.classify(ctx, sctx, err, policy)
		cancel(nil)
		return res
	}

	src, err := o.openStream(sctx, h, req)
	if err != nil {
		return fail(err)
	}
	if src == nil {
		return fail(errors.New("provider returned a nil stream"))
	}

	var first llm.StreamChunk
	select {
	case <-sctx.Done():
		return fail(context.Cause(sctx))
	case chunk, ok := <-src:
		if !ok {
			// empty stream
			if timer != nil {
				timer.Stop()
			}
			out := make(chan llm.StreamChunk)
			close(out)
			cancel(nil)
			return attemptResult{outcome: OutcomeSuccess, stream: out}
		}
		if chunk.Err != nil {
			return fail(chunk.Err)
		}
		first = chunk
	}

	if timer != nil && !timer.Stop() {
		// the timeout fired together with the first chunk
		if errors.Is(context.Cause(sctx), errAttemptTimeout) {
			return fail(errAttemptTimeout)
		}
	}

	out := make(chan llm.StreamChunk)
	go o.forward(sctx, cancel, h.Tag, first, src, out)
	return attemptResult{outcome: OutcomeSuccess, stream: out}
}

// openStream calls Provider.Stream and converts a panic into an error.
func (o *Orchestrator) openStream(ctx context.Context, h *llm.Handle, req *llm.ChatRequest) (ch <-chan llm.StreamChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("provider panicked", zap.String("provider", h.Tag), zap.Any("panic", r))
			ch, err = nil, &middleware.PanicError{Value: r}
		}
	}()
	return h.Provider.Stream(ctx, req)
}

// forward relays chunks to the caller until the source closes, a chunk
// carries an error, or ctx is done. out is always closed.
func (o *Orchestrator) forward(ctx context.Context, cancel context.CancelCauseFunc, tag string, first llm.StreamChunk, src <-chan llm.StreamChunk, out chan<- llm.StreamChunk) {
	defer cancel(nil)
	defer close(out)

	send := func(c llm.StreamChunk) bool {
		if c.Provider == "" {
			c.Provider = tag
		}
		select {
		case <-ctx.Done():
			return false
		case out <- c:
			return true
		}
	}

	if !send(first) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-src:
			if !ok {
				return
			}
			if c.Err != nil {
				o.logger.Warn("stream failed after first chunk",
					zap.String("provider", tag),
					zap.Error(c.Err),
				)
				send(c)
				return
			}
			if !send(c) {
				return
			}
		}
	}
}
