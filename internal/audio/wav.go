package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// decodeWAV reads a WAV blob into an IntBuffer. An empty data chunk is not an error.
func decodeWAV(b []byte) (*goaudio.IntBuffer, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	sr := int(dec.SampleRate)
	if buf == nil {
		return &goaudio.IntBuffer{SourceBitDepth: int(dec.BitDepth)}, sr, nil
	}
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}
	return buf, sr, nil
}

// DecodeWAVToFloat32 decodes a WAV blob into 32-bit float PCM samples.
func DecodeWAVToFloat32(b []byte) ([]float32, int, error) {
	ib, sr, err := decodeWAV(b)
	if err != nil {
		return nil, 0, err
	}
	if len(ib.Data) == 0 {
		return nil, 0, errors.New("empty wav buffer")
	}
	max := float32(maxSample(ib.SourceBitDepth))
	out := make([]float32, len(ib.Data))
	for i, v := range ib.Data {
		out[i] = float32(v) / max
	}
	return out, sr, nil
}

// DecodeWAVToPCM16 decodes a WAV blob into PCM16LE bytes, rescaling other bit depths.
func DecodeWAVToPCM16(b []byte) ([]byte, int, error) {
	ib, sr, err := decodeWAV(b)
	if err != nil {
		return nil, 0, err
	}
	depth := ib.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	out := make([]byte, 2*len(ib.Data))
	for i, v := range ib.Data {
		if depth != 16 {
			v = v * 32768 / maxSample(depth)
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamp16(v))))
	}
	return out, sr, nil
}

// DecodePCM16LEToFloat32 converts little-endian PCM16 bytes into float32 samples and returns the given sample rate.
func DecodePCM16LEToFloat32(b []byte, sampleRate int) ([]float32, int, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if len(b)%2 != 0 {
		return nil, 0, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return out, sampleRate, nil
}

// EncodeFloat32ToPCM16LE converts float32 samples in [-1, 1] to little-endian PCM16 bytes.
func EncodeFloat32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamp16(int(v*32767)))))
	}
	return out
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		if inRate == outRate {
			return append([]float32(nil), samples...)
		}
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}

// encodeWAV writes PCM16LE mono samples as a WAV file.
func encodeWAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	if len(pcm)%2 != 0 {
		return errors.New("pcm16 length must be even")
	}
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func maxSample(bitDepth int) int {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	m := 1 << (bitDepth - 1)
	if m <= 0 {
		m = 32768
	}
	return m
}

func clamp16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
