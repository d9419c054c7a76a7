package takedemo

import "time"

// Defaults for the demo flags.
const (
	DefaultBaseURL   = "http://localhost:9080"
	DefaultSamples   = 24
	DefaultStepMs    = 20.0
	DefaultBatchSize = 4
	DefaultTimeout   = 10 * time.Second
)

// Polling.
const (
	PollInterval   = 25 * time.Millisecond
	SettleDeadline = 5 * time.Second
	RenderPageSize = 256
)

// Phrase shape.
const (
	phraseRoot     = 60
	phraseHoldFrac = 0.75
)

// HTTP status codes the demo checks.
const (
	StatusOK       = 200
	StatusCreated  = 201
	StatusAccepted = 202
)

// logFilePermission is used when creating the log file.
const logFilePermission = 0600
