// Package synth is a batched signal-graph engine for modular synthesis.
//
// A Synth owns named Modules bound to one immutable Config. Each call to
// Evaluate renders batch_size independent voices: parameters are resolved
// into a fresh Snapshot (frozen values or deterministic per-voice random
// draws), then the Patch pulls module outputs in dependency order through an
// Eval, which enforces the declared shape and rate contracts of every port.
//
// Signals come in three rates. Scalar carries one value per voice, Control
// runs at Config.ControlRate and Audio at Config.SampleRate. Control-rate
// signals reach audio-rate inputs only through an explicit upsampler.
package synth
