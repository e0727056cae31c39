package cliutil

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cwbudde/algo-karplus/karplus"
)

func TestParseWorkers(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4", 4, false},
		{" 1 ", 1, false},
		{"AUTO", runtime.NumCPU(), false},
		{"0", 0, true},
		{"-3", 0, true},
		{"many", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWorkers(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got=%d err=%v want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestParamOverridesFlag(t *testing.T) {
	var o ParamOverrides
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&o, "set", "")
	if err := fs.Parse([]string{"-set", "decay=0.9", "-set", "source=Noise", "-set", "filterCutoff = 800"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := karplus.NewDefaultParams()
	if err := o.Apply(p); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if p.Decay != 0.9 || p.Waveform != karplus.Noise || p.ExciteCutoff != 800 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if o.String() == "" {
		t.Fatalf("empty flag string")
	}
}

func TestParamOverridesRejectBadInput(t *testing.T) {
	var o ParamOverrides
	if err := o.Set("decay"); err == nil {
		t.Fatalf("expected syntax error")
	}
	p := karplus.NewDefaultParams()
	if err := (ParamOverrides{"decay=2"}).Apply(p); err == nil {
		t.Fatalf("expected range error")
	}
	if err := (ParamOverrides{"resonance=1"}).Apply(p); !errors.Is(err, karplus.ErrUnknownParam) {
		t.Fatalf("expected ErrUnknownParam, got %v", err)
	}
	if err := (ParamOverrides{"gain=loud"}).Apply(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadPreset(t *testing.T) {
	p, err := LoadPreset("")
	if err != nil {
		t.Fatalf("LoadPreset(empty): %v", err)
	}
	if *p.Params != *karplus.NewDefaultParams() {
		t.Fatalf("empty path should give defaults")
	}

	path := filepath.Join(t.TempDir(), "p.json")
	if err := os.WriteFile(path, []byte(`{"decay": 0.88}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err = LoadPreset(path)
	if err != nil || p.Params.Decay != 0.88 {
		t.Fatalf("LoadPreset: %v %+v", err, p)
	}
	if _, err := LoadPreset(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
