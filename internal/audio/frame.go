package audio

import "time"

// Frame is one chunk of PCM16LE audio as delivered by a live stream.
type Frame struct {
	Seq  uint64
	At   time.Time
	Data []byte
}

// Samples returns the raw sample bytes of the frame.
func (f Frame) Samples() []byte {
	return f.Data
}

// Recording is an ordered, append-only sequence of frames for one capture session.
type Recording struct {
	frames []Frame
	bytes  int
}

// Append adds frames in the order given.
func (r *Recording) Append(frames ...Frame) {
	for _, f := range frames {
		r.frames = append(r.frames, f)
		r.bytes += len(f.Data)
	}
}

// Len returns the number of frames.
func (r *Recording) Len() int {
	return len(r.frames)
}

// Bytes returns the total sample bytes held.
func (r *Recording) Bytes() int {
	return r.bytes
}

// Frames returns a copy of the frame list so callers can't reorder the recording.
func (r *Recording) Frames() []Frame {
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Duration estimates the recording length for PCM16 mono at sampleRate.
func (r *Recording) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := r.bytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
