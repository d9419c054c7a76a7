package engine

// State is the engine's position in the record/play state machine.
// Looping is a flag on Playing, not a separate state.
type State uint8

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StatePlaying:
		return "playing"
	default:
		return "idle"
	}
}

// Notice is delivered synchronously to the notify callback after a
// transition took effect.
type Notice uint8

const (
	NoticeArmed Notice = iota + 1
	NoticeDisarmed
	NoticeRecordStarted
	NoticeRecordStopped
	NoticePlayStarted
	NoticePlayLooped
	NoticePlayStopped
	NoticeCleared
	NoticeLoaded
	NoticeEdited
	NoticeClockChanged
	NoticeLoopChanged
)

var noticeNames = map[Notice]string{
	NoticeArmed:         "armed",
	NoticeDisarmed:      "disarmed",
	NoticeRecordStarted: "record-started",
	NoticeRecordStopped: "record-stopped",
	NoticePlayStarted:   "play-started",
	NoticePlayLooped:    "play-looped",
	NoticePlayStopped:   "play-stopped",
	NoticeCleared:       "cleared",
	NoticeLoaded:        "loaded",
	NoticeEdited:        "edited",
	NoticeClockChanged:  "clock-changed",
	NoticeLoopChanged:   "loop-changed",
}

func (n Notice) String() string {
	if name, ok := noticeNames[n]; ok {
		return name
	}
	return "unknown"
}
