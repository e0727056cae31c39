// Package cliutil holds helpers shared by the ks-* command line tools.
package cliutil

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/preset"
)

// Die prints to stderr and exits with status 1.
func Die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// NewLogger returns a text logger on stderr; verbose enables debug output.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseWorkers parses a worker count flag. "auto" maps to the CPU count.
func ParseWorkers(raw string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty value (use integer >= 1 or 'auto')")
	}
	if v == "auto" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q (use integer >= 1 or 'auto')", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d (must be >= 1 or 'auto')", n)
	}
	return n, nil
}

// LoadPreset loads path, or returns defaults when path is empty.
func LoadPreset(path string) (*preset.Preset, error) {
	if strings.TrimSpace(path) == "" {
		return &preset.Preset{Params: karplus.NewDefaultParams(), IRWetMix: 1}, nil
	}
	p, err := preset.LoadJSON(path)
	if err != nil {
		return nil, fmt.Errorf("load preset %q: %w", path, err)
	}
	return p, nil
}

// ParamOverrides is a repeatable -set id=value flag.
type ParamOverrides []string

func (o *ParamOverrides) String() string {
	return strings.Join(*o, ",")
}

func (o *ParamOverrides) Set(v string) error {
	if _, _, err := splitOverride(v); err != nil {
		return err
	}
	*o = append(*o, v)
	return nil
}

// Apply sets every override on p, range-checked against the parameter specs.
func (o ParamOverrides) Apply(p *karplus.Params) error {
	for _, raw := range o {
		id, value, err := splitOverride(raw)
		if err != nil {
			return err
		}
		spec, ok := karplus.LookupParam(id)
		if !ok {
			return fmt.Errorf("%s: %w", id, karplus.ErrUnknownParam)
		}
		if id == karplus.ParamSource {
			if w, werr := karplus.ParseWaveform(value); werr == nil {
				p.Waveform = w
				continue
			}
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("%s: invalid value %q", id, value)
		}
		if !spec.Range.Contains(float32(f)) {
			return fmt.Errorf("%s must be in [%g,%g]", id, spec.Range.Min, spec.Range.Max)
		}
		if err := p.Set(id, float32(f)); err != nil {
			return err
		}
	}
	return nil
}

func splitOverride(raw string) (string, string, error) {
	id, value, ok := strings.Cut(raw, "=")
	id = strings.TrimSpace(id)
	value = strings.TrimSpace(value)
	if !ok || id == "" || value == "" {
		return "", "", fmt.Errorf("override %q must look like id=value", raw)
	}
	return id, value, nil
}
