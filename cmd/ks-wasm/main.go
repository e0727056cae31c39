//go:build js && wasm

package main

import (
	"syscall/js"
	"unsafe"

	"github.com/cwbudde/algo-karplus/karplus"
)

const maxBlockFrames = 128

var (
	globalSynth  *karplus.Synth
	globalParams *karplus.Params
	pending      []karplus.Event
	outputBuffer []float32
)

func main() {
	c := make(chan struct{})

	js.Global().Set("wasmInit", js.FuncOf(wasmInit))
	js.Global().Set("wasmNoteOn", js.FuncOf(wasmNoteOn))
	js.Global().Set("wasmNoteOff", js.FuncOf(wasmNoteOff))
	js.Global().Set("wasmSetParam", js.FuncOf(wasmSetParam))
	js.Global().Set("wasmGetParam", js.FuncOf(wasmGetParam))
	js.Global().Set("wasmProcessBlock", js.FuncOf(wasmProcessBlock))
	js.Global().Set("wasmGetMemoryBuffer", js.FuncOf(wasmGetMemoryBuffer))

	println("WASM karplus module loaded")
	<-c
}

func wasmInit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	sampleRate := args[0].Float()

	s, err := karplus.NewSynth(float32(sampleRate), maxBlockFrames)
	if err != nil {
		println("init failed:", err.Error())
		return nil
	}
	globalSynth = s
	globalParams = karplus.NewDefaultParams()
	pending = make([]karplus.Event, 0, 64)
	outputBuffer = make([]float32, maxBlockFrames*2)

	println("Karplus synth initialized at", int(sampleRate), "Hz")
	return nil
}

// Events are queued and applied at the start of the next processed block.
func wasmNoteOn(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalSynth == nil {
		return nil
	}
	note := args[0].Int()
	velocity := args[1].Int()
	pending = append(pending, karplus.NoteOn(note, float32(velocity)/127))
	return nil
}

func wasmNoteOff(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	pending = append(pending, karplus.NoteOff(args[0].Int()))
	return nil
}

// wasmSetParam(id, value) returns an error string or null.
func wasmSetParam(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalParams == nil {
		return nil
	}
	id := args[0].String()
	value := float32(args[1].Float())
	spec, ok := karplus.LookupParam(id)
	if !ok {
		return "unknown parameter " + id
	}
	if err := globalParams.Set(id, spec.Range.Snap(value)); err != nil {
		return err.Error()
	}
	return nil
}

func wasmGetParam(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalParams == nil {
		return nil
	}
	v, err := globalParams.Get(args[0].String())
	if err != nil {
		return nil
	}
	return float64(v)
}

func wasmProcessBlock(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return 0
	}

	numFrames := args[0].Int()
	if numFrames > maxBlockFrames {
		numFrames = maxBlockFrames
	}

	output := globalSynth.RenderBlock(pending, globalParams, numFrames)
	pending = pending[:0]
	copy(outputBuffer, output)

	ptr := &outputBuffer[0]
	return js.ValueOf(uintptr(unsafe.Pointer(ptr)))
}

func wasmGetMemoryBuffer(this js.Value, args []js.Value) interface{} {
	return js.Global().Get("Go").Get("_inst").Get("exports").Get("mem").Get("buffer")
}
