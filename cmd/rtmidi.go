//go:build cgo

package main

// Registers the RtMidi driver so configured MIDI ports can be opened.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
