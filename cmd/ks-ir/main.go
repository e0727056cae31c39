package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/cwbudde/algo-karplus/bodyir"
	"github.com/cwbudde/algo-karplus/internal/cliutil"
	"github.com/cwbudde/algo-karplus/internal/wavio"
)

func main() {
	cfg := bodyir.DefaultConfig()

	output := flag.String("output", "ir/body_48k.wav", "Output WAV path")
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Output sample rate")
	flag.Float64Var(&cfg.DurationS, "duration", cfg.DurationS, "IR length in seconds")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.DirectLevel, "direct", cfg.DirectLevel, "Direct impulse level")
	flag.Float64Var(&cfg.AirHz, "air-hz", cfg.AirHz, "Sound hole (Helmholtz) resonance in Hz")
	flag.Float64Var(&cfg.AirDecayS, "air-decay", cfg.AirDecayS, "Air resonance decay time (s)")
	flag.Float64Var(&cfg.TopHz, "top-hz", cfg.TopHz, "Lowest top-plate mode in Hz")
	flag.IntVar(&cfg.TopModes, "top-modes", cfg.TopModes, "Number of top-plate modes")
	flag.Float64Var(&cfg.PlateRatio, "plate-ratio", cfg.PlateRatio, "Top plate aspect ratio Lx/Ly")
	flag.Float64Var(&cfg.StiffnessRatio, "stiffness-ratio", cfg.StiffnessRatio, "Top plate stiffness ratio Dx/Dy")
	flag.Float64Var(&cfg.BodyDecayS, "body-decay", cfg.BodyDecayS, "Lowest plate mode decay time (s)")
	flag.Float64Var(&cfg.Brightness, "brightness", cfg.Brightness, "Spectral brightness control (>0)")
	flag.IntVar(&cfg.EarlyCount, "early", cfg.EarlyCount, "Number of early reflections")
	flag.Float64Var(&cfg.LateLevel, "late", cfg.LateLevel, "Diffuse late-tail level")
	flag.Float64Var(&cfg.LateDecayS, "late-decay", cfg.LateDecayS, "Late tail decay time (s)")
	flag.Float64Var(&cfg.LateToneHz, "late-tone", cfg.LateToneHz, "Late tail low-pass corner (Hz)")
	flag.Float64Var(&cfg.StereoWidth, "stereo-width", cfg.StereoWidth, "Stereo decorrelation width")
	flag.Float64Var(&cfg.FadeOutS, "fade", cfg.FadeOutS, "Fade-out length at the end (s)")
	flag.Float64Var(&cfg.NormalizePeak, "normalize", cfg.NormalizePeak, "Peak normalization target")
	flag.Parse()

	left, right, err := bodyir.Generate(cfg)
	if err != nil {
		cliutil.Die("ks-ir error: %v", err)
	}

	data := make([]float32, len(left)*2)
	var peak float64
	for i := range left {
		data[i*2] = left[i]
		data[i*2+1] = right[i]
		peak = math.Max(peak, math.Max(math.Abs(float64(left[i])), math.Abs(float64(right[i]))))
	}
	if err := wavio.WriteStereo(*output, data, cfg.SampleRate); err != nil {
		cliutil.Die("wav write error: %v", err)
	}

	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("SampleRate: %d Hz, Duration: %.3f s, Samples: %d\n", cfg.SampleRate, cfg.DurationS, len(left))
	fmt.Printf("Peak: %.6f, RMS: %.6f\n", peak, wavio.RMS(data))
}
