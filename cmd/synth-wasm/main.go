//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"
	"unsafe"

	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

var (
	globalSynth  *synth.Synth
	globalPreset = &preset.File{}
	outputBuffer []float32
)

func main() {
	// Keep program running
	c := make(chan struct{})

	js.Global().Set("wasmInit", js.FuncOf(wasmInit))
	js.Global().Set("wasmLoadPreset", js.FuncOf(wasmLoadPreset))
	js.Global().Set("wasmSetParam", js.FuncOf(wasmSetParam))
	js.Global().Set("wasmRender", js.FuncOf(wasmRender))
	js.Global().Set("wasmGetMemoryBuffer", js.FuncOf(wasmGetMemoryBuffer))

	println("WASM synth module loaded")
	<-c
}

// wasmInit(sampleRate, controlRate, seconds) builds the voice synth with a
// batch of four voices.
func wasmInit(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return false
	}
	return rebuild(
		synth.WithBatchSize(synth.ReproducibleBatchUnit),
		synth.WithSampleRate(args[0].Int()),
		synth.WithControlRate(args[1].Int()),
		synth.WithBufferSeconds(args[2].Float()),
	)
}

var engineOptions []synth.Option

func rebuild(opts ...synth.Option) bool {
	if opts != nil {
		engineOptions = opts
	}
	s, err := preset.Build(globalPreset, engineOptions...)
	if err != nil {
		println("synth build failed:", err.Error())
		return false
	}
	globalSynth = s
	println("Synth initialized:", s.Config().String())
	return true
}

// wasmLoadPreset(json) replaces the preset. Wiring files are not available
// in the browser, so wiring_path is ignored.
func wasmLoadPreset(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	var f preset.File
	if err := json.Unmarshal([]byte(args[0].String()), &f); err != nil {
		println("invalid preset:", err.Error())
		return false
	}
	if err := f.Validate(); err != nil {
		println("invalid preset:", err.Error())
		return false
	}
	f.WiringPath = ""
	globalPreset = &f
	return rebuild()
}

// wasmSetParam("module.param", value) freezes one parameter for every voice.
func wasmSetParam(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalSynth == nil {
		return false
	}
	f := *globalPreset
	f.Frozen = map[string]float64{args[0].String(): args[1].Float()}
	if err := preset.Apply(globalSynth, &f); err != nil {
		println("set param failed:", err.Error())
		return false
	}
	if globalPreset.Frozen == nil {
		globalPreset.Frozen = map[string]float64{}
	}
	globalPreset.Frozen[args[0].String()] = args[1].Float()
	return true
}

// wasmRender(batchID, voice) renders one voice into the shared output buffer
// and returns its pointer in linear memory, or 0 on failure. The frame count
// is the synth's audio length.
func wasmRender(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalSynth == nil {
		return 0
	}
	voice := args[1].Int()
	if voice < 0 || voice >= globalSynth.Config().BatchSize() {
		return 0
	}
	out, err := globalSynth.Evaluate(uint64(args[0].Float()))
	if err != nil {
		println("render failed:", err.Error())
		return 0
	}

	row := out.Voice(voice)
	if cap(outputBuffer) < len(row) {
		outputBuffer = make([]float32, len(row))
	}
	outputBuffer = outputBuffer[:len(row)]
	for i, v := range row {
		outputBuffer[i] = float32(v)
	}

	ptr := &outputBuffer[0]
	return js.ValueOf(uintptr(unsafe.Pointer(ptr)))
}

func wasmGetMemoryBuffer(this js.Value, args []js.Value) interface{} {
	return js.Global().Get("Go").Get("_inst").Get("exports").Get("mem").Get("buffer")
}
