package midi

import (
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/okian/retake/internal/domain/model"
)

// Listener feeds note input from one MIDI port.
type Listener struct {
	port string
	stop func()
}

// Handler returns the receive callback used by Listen. Each note message is
// stamped with stamp() on arrival and handed to feed. feed runs on the
// driver's goroutine and must not block.
func Handler(stamp func() time.Duration, feed func(model.Sample), opts ...Option) func(gomidi.Message, int32) {
	cfg := newConfig(opts)
	return func(msg gomidi.Message, _ int32) {
		if !cfg.anyChan {
			if ch, ok := Channel(msg); !ok || ch != cfg.channel {
				return
			}
		}
		if s, ok := Sample(msg, stamp()); ok {
			feed(s)
		}
	}
}

// Listen starts receiving from in.
func Listen(in drivers.In, stamp func() time.Duration, feed func(model.Sample), opts ...Option) (*Listener, error) {
	stop, err := gomidi.ListenTo(in, Handler(stamp, feed, opts...))
	if err != nil {
		return nil, fmt.Errorf("listen to %s: %w", in, err)
	}
	return &Listener{port: in.String(), stop: stop}, nil
}

func (l *Listener) Port() string { return l.port }

// Close stops receiving. It is safe to call more than once.
func (l *Listener) Close() {
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
}

// OpenIn finds an input port by name.
func OpenIn(name string) (drivers.In, error) {
	in, err := gomidi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("midi in %q: %w", name, err)
	}
	return in, nil
}

// OpenOut finds an output port by name and returns a sender for it.
func OpenOut(name string) (SendFunc, error) {
	out, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("midi out %q: %w", name, err)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open midi out %q: %w", name, err)
	}
	return send, nil
}

// Ports lists the names of every input and output port.
func Ports() (ins, outs []string) {
	for _, p := range gomidi.GetInPorts() {
		ins = append(ins, p.String())
	}
	for _, p := range gomidi.GetOutPorts() {
		outs = append(outs, p.String())
	}
	return ins, outs
}

// CloseDriver releases the registered MIDI driver.
func CloseDriver() { gomidi.CloseDriver() }
