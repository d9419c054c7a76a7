package capture

import "errors"

// Sentinel errors for capture.
var (
	ErrAlreadyRecording = errors.New("take already in progress")
	ErrNotRecording     = errors.New("no take in progress")
	ErrFamilyMismatch   = errors.New("sample family differs from take")
)
