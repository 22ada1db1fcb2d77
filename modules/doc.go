// Package modules provides the reference synthesis modules: a keyboard,
// an ADSR envelope, an oscillator, a noise source, an amplifier, a low-pass
// filter and a mixer. Each constructor has the synth.Constructor signature
// and can be registered on a synth.Synth under any name.
package modules
