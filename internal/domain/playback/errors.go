package playback

import "errors"

// Sentinel errors for playback.
var (
	ErrNoRecording = errors.New("nothing to play")
	ErrUnknownMode = errors.New("unknown playback mode")
)
