// Package wavio reads and writes the WAV files used by the command-line tools.
package wavio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// ReadChannels decodes path into per-channel float32 slices.
func ReadChannels(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("invalid wav sample-rate %d: %s", buf.Format.SampleRate, path)
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	out := make([][]float32, ch)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			out[c][i] = buf.Data[i*ch+c]
		}
	}
	return out, buf.Format.SampleRate, nil
}

// ReadMono decodes path and averages all channels.
func ReadMono(path string) ([]float64, int, error) {
	chans, sr, err := ReadChannels(path)
	if err != nil {
		return nil, 0, err
	}
	frames := len(chans[0])
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for _, c := range chans {
			sum += float64(c[i])
		}
		out[i] = sum / float64(len(chans))
	}
	return out, sr, nil
}

// Resample converts in from fromRate to toRate. Equal rates return in as-is.
func Resample(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", fromRate, toRate, err)
	}
	return r.Process(in), nil
}

// Resample32 is Resample for float32 data.
func Resample32(in []float32, fromRate int, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	in64 := make([]float64, len(in))
	for i, v := range in {
		in64[i] = float64(v)
	}
	out64, err := Resample(in64, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out, nil
}

// WriteInterleaved writes 16-bit PCM with numChannels interleaved channels,
// creating parent directories as needed.
func WriteInterleaved(path string, samples []float32, sampleRate int, numChannels int) error {
	if numChannels < 1 {
		return fmt.Errorf("invalid channel count %d", numChannels)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return enc.Close()
}

// WriteStereo writes interleaved stereo samples.
func WriteStereo(path string, interleaved []float32, sampleRate int) error {
	return WriteInterleaved(path, interleaved, sampleRate, 2)
}

// WriteMono writes a single channel.
func WriteMono(path string, data []float32, sampleRate int) error {
	return WriteInterleaved(path, data, sampleRate, 1)
}

// StereoToMono64 averages interleaved stereo frames.
func StereoToMono64(st []float32) []float64 {
	n := len(st) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = 0.5 * (float64(st[i*2]) + float64(st[i*2+1]))
	}
	return out
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
