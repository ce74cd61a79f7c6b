package audio

// Assemble concatenates every frame's samples in arrival order.
// No reordering, resampling or transcoding happens here.
func Assemble(rec *Recording) []byte {
	if rec == nil {
		return nil
	}
	out := make([]byte, 0, rec.Bytes())
	for _, f := range rec.frames {
		out = append(out, f.Samples()...)
	}
	return out
}
