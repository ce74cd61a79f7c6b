package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/audio"
)

// ErrNotStarted is returned when Run is handed a stream that is not playing.
var ErrNotStarted = errors.New("capture not started: stream is not playing")

// State is the capture loop's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// ProgressSink receives the running frame count after each non-empty poll.
// Implementations must return quickly and never block the loop.
type ProgressSink interface {
	Progress(frames int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(frames int)

func (f ProgressFunc) Progress(frames int) { f(frames) }

// Capturer polls a Source into a Recording.
type Capturer struct {
	PollWait  time.Duration
	IdlePause time.Duration
	// OnState, if set, observes every state transition.
	OnState func(State)
}

// New returns a Capturer with the given poll wait and idle pause.
func New(pollWait, idlePause time.Duration) *Capturer {
	if pollWait <= 0 {
		pollWait = time.Second
	}
	if idlePause < 0 {
		idlePause = 0
	}
	return &Capturer{PollWait: pollWait, IdlePause: idlePause}
}

// Run captures src until the stream closes, the playing flag drops, or ctx
// is cancelled. The accumulated recording is returned in every case; the
// error is nil for a normal end, ctx.Err() on cancellation, or the source's
// error if a poll fails.
func (c *Capturer) Run(ctx context.Context, src Source, sink ProgressSink) (*audio.Recording, error) {
	rec := &audio.Recording{}
	state := StateIdle
	c.transition(&state, StateIdle)

	if !src.Active() {
		return rec, ErrNotStarted
	}
	c.transition(&state, StateCapturing)

	var cause error
	for state == StateCapturing {
		if err := ctx.Err(); err != nil {
			cause = err
			c.transition(&state, StateDraining)
			break
		}
		if !src.Active() {
			c.transition(&state, StateDraining)
			break
		}

		frames, err := src.Poll(ctx, c.PollWait)
		switch {
		case errors.Is(err, ErrClosed):
			c.transition(&state, StateDone)
			continue
		case err != nil && ctx.Err() != nil:
			cause = ctx.Err()
			c.transition(&state, StateDraining)
			continue
		case err != nil:
			c.transition(&state, StateDone)
			return rec, err
		}

		if len(frames) == 0 {
			c.idle(ctx)
			continue
		}
		rec.Append(frames...)
		report(sink, rec.Len())
	}

	if state == StateDraining {
		c.drain(src, rec, sink)
		c.transition(&state, StateDone)
	}

	log.Debug().Int("frames", rec.Len()).Int("bytes", rec.Bytes()).Msg("capture: done")
	return rec, cause
}

// drain collects frames that were already buffered when capture stopped.
func (c *Capturer) drain(src Source, rec *audio.Recording, sink ProgressSink) {
	for {
		frames, err := src.Poll(context.Background(), 0)
		if err != nil || len(frames) == 0 {
			return
		}
		rec.Append(frames...)
		report(sink, rec.Len())
	}
}

func (c *Capturer) idle(ctx context.Context) {
	if c.IdlePause <= 0 {
		return
	}
	t := time.NewTimer(c.IdlePause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (c *Capturer) transition(cur *State, next State) {
	*cur = next
	if c.OnState != nil {
		c.OnState(next)
	}
}

func report(sink ProgressSink, frames int) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("capture: progress sink panicked")
		}
	}()
	sink.Progress(frames)
}
