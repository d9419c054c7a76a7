package engine

import (
	"fmt"

	"github.com/okian/retake/internal/domain/capture"
	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/model"
)

// Op names one control operation.
type Op uint8

const (
	OpArm Op = iota + 1
	OpDisarm
	OpRecord
	OpInput
	OpStop
	OpPlay
	OpSetLoop
	OpClear
	OpToggle
	OpUseClock
	OpSave
	OpLoad
	OpEdit
	OpTick
	OpView
)

var opNames = map[Op]string{
	OpArm:      "arm",
	OpDisarm:   "disarm",
	OpRecord:   "record",
	OpInput:    "input",
	OpStop:     "stop",
	OpPlay:     "play",
	OpSetLoop:  "set-loop",
	OpClear:    "clear",
	OpToggle:   "toggle",
	OpUseClock: "use-clock",
	OpSave:     "save",
	OpLoad:     "load",
	OpEdit:     "edit",
	OpTick:     "tick",
	OpView:     "view",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps an operation name back to its Op.
func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Command is one typed request for Dispatch. Only the fields used by Op
// are read.
type Command struct {
	Op        Op
	Samples   []model.Sample
	Recording *model.Recording
	Loop      *bool
	Settings  LoopSettings
	Clock     clock.Mode
	Blob      []byte
	Edit      func(*model.Recording) (*model.Recording, error)
}

// Result is what Dispatch returns. Err is ErrInvalidTransition when a
// control operation was refused in the current state.
type Result struct {
	OK        bool
	Err       error
	State     State
	Outcomes  []capture.Outcome
	Blob      []byte
	Recording *model.Recording
	View      View
}

// Dispatch runs cmd against the engine. It is the single entry point hosts
// use to drive an engine from a queue.
func (e *Engine) Dispatch(cmd Command) Result {
	var res Result
	switch cmd.Op {
	case OpArm:
		res.OK = e.Arm()
	case OpDisarm:
		res.OK = e.Disarm()
	case OpRecord:
		res.OK = e.Record()
	case OpInput:
		res.OK = true
		res.Outcomes = make([]capture.Outcome, len(cmd.Samples))
		for i, s := range cmd.Samples {
			res.Outcomes[i] = e.Input(s)
		}
		if e.state == StatePlaying && len(cmd.Samples) > 0 {
			res.OK = false
		}
	case OpStop:
		e.Stop()
		res.OK = true
	case OpPlay:
		res.Err = e.play(cmd.Recording, cmd.Loop)
		res.OK = res.Err == nil
	case OpSetLoop:
		ls := cmd.Settings
		if ls.Loop == nil {
			ls.Loop = cmd.Loop
		}
		res.Err = e.Configure(ls)
		res.OK = res.Err == nil
	case OpClear:
		e.Clear()
		res.OK = true
	case OpToggle:
		before := e.state
		res.OK = e.Toggle() != before
	case OpUseClock:
		res.Err = e.UseClock(cmd.Clock)
		res.OK = res.Err == nil
	case OpSave:
		res.Blob, res.Err = e.Save()
		res.OK = res.Err == nil
	case OpLoad:
		res.Err = e.Load(cmd.Blob)
		res.OK = res.Err == nil
	case OpEdit:
		if cmd.Edit == nil {
			res.Err = fmt.Errorf("%w: edit without a function", ErrUnknownOp)
			break
		}
		res.Err = e.Edit(cmd.Edit)
		res.OK = res.Err == nil
	case OpTick:
		e.Tick()
		res.OK = true
	case OpView:
		res.OK = true
	default:
		res.Err = fmt.Errorf("%w: %s", ErrUnknownOp, cmd.Op)
	}
	if !res.OK && res.Err == nil {
		res.Err = fmt.Errorf("%w: %s while %s", ErrInvalidTransition, cmd.Op, e.state)
	}
	res.State = e.state
	res.Recording = e.rec
	res.View = e.View()
	return res
}
