package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obiente/anamnesis/internal/audio"
)

// ErrClosed is returned by Poll once the stream has ended and nothing is left to read.
var ErrClosed = errors.New("stream closed")

// Source is a live audio stream that delivers frames in batches.
type Source interface {
	// Active reports whether the stream is still playing.
	Active() bool
	// Poll waits up to wait for at least one frame and returns whatever is
	// ready. An empty result with a nil error means nothing arrived in time.
	Poll(ctx context.Context, wait time.Duration) ([]audio.Frame, error)
}

// ChannelSource is a Source fed by Push from another goroutine. The frame
// channel is never closed; done marks the end of the stream.
type ChannelSource struct {
	frames    chan audio.Frame
	done      chan struct{}
	closeOnce sync.Once
	playing   atomic.Bool
	maxBatch  int
}

// NewChannelSource returns a playing source buffering up to capacity frames.
func NewChannelSource(capacity int) *ChannelSource {
	if capacity <= 0 {
		capacity = 256
	}
	s := &ChannelSource{
		frames:   make(chan audio.Frame, capacity),
		done:     make(chan struct{}),
		maxBatch: capacity,
	}
	s.playing.Store(true)
	return s
}

// Push hands a frame to the capture loop. It blocks while the buffer is full
// and returns false once the source has been closed, including when Close
// happens while it is blocked.
func (s *ChannelSource) Push(ctx context.Context, f audio.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop clears the playing flag; frames already pushed are still drained.
func (s *ChannelSource) Stop() {
	s.playing.Store(false)
}

// Close ends the stream and releases blocked producers. Safe to call more
// than once and from any goroutine.
func (s *ChannelSource) Close() {
	s.playing.Store(false)
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *ChannelSource) Active() bool {
	return s.playing.Load()
}

// Poll returns buffered frames first; ErrClosed is only reported once the
// source is closed and the buffer is empty.
func (s *ChannelSource) Poll(ctx context.Context, wait time.Duration) ([]audio.Frame, error) {
	var first audio.Frame

	if wait <= 0 {
		select {
		case first = <-s.frames:
		default:
			if s.isClosed() {
				return nil, ErrClosed
			}
			return nil, nil
		}
	} else {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case first = <-s.frames:
		case <-s.done:
			select {
			case first = <-s.frames:
			default:
				return nil, ErrClosed
			}
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	batch := []audio.Frame{first}
	for len(batch) < s.maxBatch {
		select {
		case f := <-s.frames:
			batch = append(batch, f)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (s *ChannelSource) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
