package takedemo

import (
	"time"

	"github.com/okian/retake/internal/domain/types"
)

// Take kinds the demo can generate.
const (
	KindGesture = "gesture"
	KindPhrase  = "phrase"
)

// Config holds configuration for one demo run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Kind      string        // gesture or phrase
	Samples   int           // Moves in a gesture, notes in a phrase
	StepMs    float64       // Spacing between samples or notes
	BatchSize int           // Samples posted per request
	Loop      bool          // Play the take in a loop
	Passes    int           // Passes to wait for when looping
	TakeName  string        // Save the take under this name; empty skips saving
	Timeout   time.Duration // HTTP request timeout
	LogFile   string        // Log file for demo output
	Verbose   bool          // Enable verbose logging
}

// DefaultConfig returns the settings used when no flags are given.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   DefaultBaseURL,
		Kind:      KindGesture,
		Samples:   DefaultSamples,
		StepMs:    DefaultStepMs,
		BatchSize: DefaultBatchSize,
		Passes:    1,
		Timeout:   DefaultTimeout,
	}
}

// Batch is one POST /sessions/{id}/input body. AtMs is when it is due,
// relative to the first batch.
type Batch struct {
	BatchID string         `json:"batch_id"`
	Samples []types.Sample `json:"samples"`
	AtMs    float64        `json:"-"`
}

// Stats holds run statistics.
type Stats struct {
	SessionID      string
	SamplesSent    int
	BatchesSent    int
	Duplicates     int
	Ignored        int
	RecordedEvents int
	RecordedMs     float64
	Renders        int
	Passes         int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
