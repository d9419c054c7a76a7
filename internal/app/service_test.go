package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/retake/internal/app"
	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithTickInterval(time.Millisecond),
		service.WithThrottle(0),
		service.WithStore(repository.NewMemoryStore()),
	}
	return service.New(append(base, opts...)...)
}

func started(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	svc := newService(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func gesture() []types.Sample {
	return []types.Sample{
		{Kind: "down", X: f(0.1), Y: f(0.1)},
		{Kind: "move", X: f(0.5), Y: f(0.5), OffsetMs: 10},
		{Kind: "up", X: f(0.9), Y: f(0.9), OffsetMs: 20},
	}
}

// eventually polls cond until it holds or two seconds pass.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that is not started", t, func() {
		svc := newService()

		Convey("Then session operations fail", func() {
			_, err := svc.CreateSession(context.Background(), types.SessionOptions{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.Session(context.Background(), "missing")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)

			_, err := svc.CreateSession(context.Background(), types.SessionOptions{})
			So(err, ShouldBeNil)
			So(svc.GetStats().Sessions, ShouldEqual, 1)
			So(svc.GetStats().StoreDriver, ShouldEqual, repository.DriverMemory)

			svc.Stop()
			svc.Stop()

			Convey("Then every session is gone", func() {
				So(svc.GetStats().Sessions, ShouldEqual, 0)
			})
		})
	})
}

// slowStore blocks List until release is closed.
type slowStore struct {
	repository.Store
	listing chan struct{}
	release chan struct{}
}

func (s *slowStore) List(ctx context.Context) ([]repository.Take, error) {
	close(s.listing)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.List(ctx)
}

func TestService_StatsDoNotHoldTheLock(t *testing.T) {
	Convey("Given a service whose store lists slowly", t, func() {
		store := &slowStore{
			Store:   repository.NewMemoryStore(),
			listing: make(chan struct{}),
			release: make(chan struct{}),
		}
		svc := started(t, service.WithStore(store))
		ctx := context.Background()

		Convey("Sessions can be created while stats wait on the store", func() {
			done := make(chan types.Stats, 1)
			go func() { done <- svc.GetStats() }()
			<-store.listing

			created := make(chan error, 1)
			go func() {
				_, err := svc.CreateSession(ctx, types.SessionOptions{})
				created <- err
			}()

			var err error
			select {
			case err = <-created:
			case <-time.After(500 * time.Millisecond):
				err = errors.New("create blocked behind stats")
			}
			So(err, ShouldBeNil)

			close(store.release)
			stats := <-done
			So(stats.Takes, ShouldEqual, 0)
			So(stats.StoreDriver, ShouldEqual, repository.DriverMemory)
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started(t, service.WithMaxSessions(2))
		ctx := context.Background()

		Convey("When creating a session with defaults", func() {
			s, err := svc.CreateSession(ctx, types.SessionOptions{})

			Convey("Then it starts idle on the internal clock", func() {
				So(err, ShouldBeNil)
				So(s.ID, ShouldNotBeEmpty)
				So(s.State, ShouldEqual, "idle")
				So(s.ClockMode, ShouldEqual, "internal")
				So(s.Mode, ShouldEqual, "poll")
				So(s.HasRecording, ShouldBeFalse)
			})

			Convey("And it can be read, listed and deleted", func() {
				got, err := svc.Session(ctx, s.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, s.ID)

				list, err := svc.Sessions(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)

				So(svc.DeleteSession(ctx, s.ID), ShouldBeNil)
				_, err = svc.Session(ctx, s.ID)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				So(errors.Is(svc.DeleteSession(ctx, s.ID), service.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When options are given", func() {
			loop := true
			s, err := svc.CreateSession(ctx, types.SessionOptions{Mode: "lookahead", Clock: "host", Loop: &loop})

			So(err, ShouldBeNil)
			So(s.Mode, ShouldEqual, "lookahead")
			So(s.ClockMode, ShouldEqual, "host")
			So(s.Loop, ShouldBeTrue)
		})

		Convey("When options are invalid", func() {
			_, err := svc.CreateSession(ctx, types.SessionOptions{Mode: "sideways"})
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)

			_, err = svc.CreateSession(ctx, types.SessionOptions{Clock: "sundial"})
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When the session limit is reached", func() {
			_, _ = svc.CreateSession(ctx, types.SessionOptions{})
			_, _ = svc.CreateSession(ctx, types.SessionOptions{})
			_, err := svc.CreateSession(ctx, types.SessionOptions{})

			So(errors.Is(err, service.ErrTooManySessions), ShouldBeTrue)
		})
	})
}

func TestService_Control(t *testing.T) {
	Convey("Given an idle session", t, func() {
		svc := started(t)
		ctx := context.Background()
		s, err := svc.CreateSession(ctx, types.SessionOptions{})
		So(err, ShouldBeNil)

		Convey("Arm and disarm move between idle and armed", func() {
			v, err := svc.Control(ctx, s.ID, engine.OpArm)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "armed")

			v, err = svc.Control(ctx, s.ID, engine.OpDisarm)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "idle")
		})

		Convey("Play without a recording is refused", func() {
			_, err := svc.Play(ctx, s.ID, nil, "")
			So(errors.Is(err, engine.ErrNoRecording), ShouldBeTrue)
		})

		Convey("Disarm while idle is an invalid transition", func() {
			_, err := svc.Control(ctx, s.ID, engine.OpDisarm)
			So(errors.Is(err, engine.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("Operations that take arguments are not control operations", func() {
			_, err := svc.Control(ctx, s.ID, engine.OpLoad)
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Unknown sessions are reported", func() {
			_, err := svc.Control(ctx, "nope", engine.OpArm)
			So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("The loop flag and clock can be changed", func() {
			loop := true
			v, err := svc.SetLoop(ctx, s.ID, types.LoopSettings{Loop: &loop})
			So(err, ShouldBeNil)
			So(v.Loop, ShouldBeTrue)

			_, err = svc.SetLoop(ctx, s.ID, types.LoopSettings{})
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)

			v, err = svc.UseClock(ctx, s.ID, "host")
			So(err, ShouldBeNil)
			So(v.ClockMode, ShouldEqual, "host")

			_, err = svc.UseClock(ctx, s.ID, "wall")
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestService_Input(t *testing.T) {
	Convey("Given an armed session", t, func() {
		svc := started(t)
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{})
		_, err := svc.Control(ctx, s.ID, engine.OpArm)
		So(err, ShouldBeNil)

		Convey("When a complete gesture is posted", func() {
			res, err := svc.Input(ctx, s.ID, "b1", gesture())

			Convey("Then every sample is stored and the take is finalized", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Outcomes, ShouldResemble, []string{"stored", "stored", "stored"})
				So(res.State, ShouldEqual, "idle")

				events, err := svc.Events(ctx, s.ID)
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 3)
				So(events[0].Kind, ShouldEqual, "down")
				So(events[0].TMs, ShouldEqual, 0)
				So(events[2].Kind, ShouldEqual, "up")
				So(events[2].TMs, ShouldEqual, 20)
			})

			Convey("And posting the same batch again is acknowledged only", func() {
				res, err := svc.Input(ctx, s.ID, "b1", gesture())
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
				So(svc.GetStats().DedupeEntries, ShouldEqual, 1)
			})
		})

		Convey("When a sample is malformed", func() {
			_, err := svc.Input(ctx, s.ID, "", []types.Sample{{Kind: "wiggle"}})
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)

			_, err = svc.Input(ctx, s.ID, "", []types.Sample{{Kind: "note-on"}})
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When a note phrase is stopped", func() {
			_, err := svc.Input(ctx, s.ID, "", []types.Sample{
				{Kind: "note-on", Note: n(60), Velocity: f(0.8)},
				{Kind: "note-off", Note: n(60), OffsetMs: 50},
			})
			So(err, ShouldBeNil)
			v, err := svc.Control(ctx, s.ID, engine.OpStop)

			Convey("Then the notes become the recording", func() {
				So(err, ShouldBeNil)
				So(v.State, ShouldEqual, "idle")
				So(v.Events, ShouldEqual, 2)
				So(v.DurationMs, ShouldBeGreaterThanOrEqualTo, 50)
			})
		})
	})
}

func TestService_Playback(t *testing.T) {
	Convey("Given a session holding a recorded gesture", t, func() {
		svc := started(t)
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{})
		_, _ = svc.Control(ctx, s.ID, engine.OpArm)
		_, err := svc.Input(ctx, s.ID, "", gesture())
		So(err, ShouldBeNil)

		Convey("When it is played once", func() {
			v, err := svc.Play(ctx, s.ID, nil, "")
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "playing")

			Convey("Then it renders down first, up last and goes idle", func() {
				So(eventually(func() bool {
					cur, _ := svc.Session(ctx, s.ID)
					return cur.State == "idle"
				}), ShouldBeTrue)

				renders, err := svc.Renders(ctx, s.ID, 0, 0)
				So(err, ShouldBeNil)
				So(len(renders), ShouldBeGreaterThanOrEqualTo, 2)
				So(renders[0].Event.Kind, ShouldEqual, "down")
				So(renders[len(renders)-1].Event.Kind, ShouldEqual, "up")
				for i := 1; i < len(renders); i++ {
					So(renders[i].Seq, ShouldEqual, renders[i-1].Seq+1)
				}

				later, _ := svc.Renders(ctx, s.ID, renders[0].Seq, 1)
				So(later, ShouldHaveLength, 1)
				So(later[0].Seq, ShouldEqual, renders[1].Seq)
			})
		})

		Convey("When it is played in a loop and stopped", func() {
			loop := true
			_, err := svc.Play(ctx, s.ID, &loop, "")
			So(err, ShouldBeNil)
			So(eventually(func() bool {
				cur, _ := svc.Session(ctx, s.ID)
				return cur.Passes >= 2
			}), ShouldBeTrue)

			v, err := svc.Control(ctx, s.ID, engine.OpStop)

			Convey("Then it is idle again", func() {
				So(err, ShouldBeNil)
				So(v.State, ShouldEqual, "idle")
				So(svc.GetStats().Playing, ShouldEqual, 0)
			})
		})

		Convey("When it loops with a pass cap", func() {
			v, err := svc.SetLoop(ctx, s.ID, types.LoopSettings{MaxPasses: n(2)})
			So(err, ShouldBeNil)
			So(v.MaxPasses, ShouldEqual, 2)

			loop := true
			_, err = svc.Play(ctx, s.ID, &loop, "")
			So(err, ShouldBeNil)

			Convey("Then it stops by itself after two passes", func() {
				So(eventually(func() bool {
					cur, _ := svc.Session(ctx, s.ID)
					return cur.State == "idle"
				}), ShouldBeTrue)
				cur, _ := svc.Session(ctx, s.ID)
				So(cur.Passes, ShouldEqual, 2)
			})
		})

		Convey("When a loop region is set", func() {
			v, err := svc.SetLoop(ctx, s.ID, types.LoopSettings{Region: &types.Region{StartMs: 0, EndMs: 10}})

			Convey("Then the session reports it", func() {
				So(err, ShouldBeNil)
				So(v.Region, ShouldResemble, &types.Region{StartMs: 0, EndMs: 10})
			})

			Convey("Then an inverted region is refused", func() {
				_, err := svc.SetLoop(ctx, s.ID, types.LoopSettings{Region: &types.Region{StartMs: 10, EndMs: 5}})
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When input arrives during playback", func() {
			loop := true
			_, _ = svc.Play(ctx, s.ID, &loop, "")
			res, err := svc.Input(ctx, s.ID, "", gesture()[:1])

			Convey("Then it is ignored", func() {
				So(err, ShouldBeNil)
				So(res.Outcomes, ShouldResemble, []string{"ignored"})
				So(res.State, ShouldEqual, "playing")
			})
		})
	})
}

func TestService_Recording(t *testing.T) {
	Convey("Given a session holding a recorded gesture", t, func() {
		svc := started(t)
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{})
		_, _ = svc.Control(ctx, s.ID, engine.OpArm)
		_, _ = svc.Input(ctx, s.ID, "", gesture())

		Convey("A snapshot loads into another session", func() {
			blob, err := svc.Snapshot(ctx, s.ID)
			So(err, ShouldBeNil)

			other, _ := svc.CreateSession(ctx, types.SessionOptions{})
			v, err := svc.LoadSnapshot(ctx, other.ID, blob)
			So(err, ShouldBeNil)
			So(v.HasRecording, ShouldBeTrue)
			So(v.Events, ShouldEqual, 3)
		})

		Convey("A malformed snapshot leaves the session untouched", func() {
			_, err := svc.LoadSnapshot(ctx, s.ID, []byte(`{"version":99,"events":[]}`))
			So(err, ShouldNotBeNil)

			v, _ := svc.Session(ctx, s.ID)
			So(v.Events, ShouldEqual, 3)
		})

		Convey("An event can be edited and removed", func() {
			events, err := svc.EditEvent(ctx, s.ID, 1, types.EventPatch{X: f(0.25)})
			So(err, ShouldBeNil)
			So(*events[1].X, ShouldEqual, 0.25)

			events, err = svc.EditEvent(ctx, s.ID, 1, types.EventPatch{Remove: true})
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 2)

			_, err = svc.EditEvent(ctx, s.ID, 9, types.EventPatch{})
			So(err, ShouldNotBeNil)
		})

		Convey("Stretching doubles every offset", func() {
			events, err := svc.Stretch(ctx, s.ID, 2)
			So(err, ShouldBeNil)
			So(events[2].TMs, ShouldEqual, 40)
		})

		Convey("A pointer take has no MIDI export", func() {
			_, err := svc.ExportSMF(ctx, s.ID)
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestService_MaxLoop(t *testing.T) {
	Convey("Given a service that caps loops at 10ms and a 20ms take", t, func() {
		svc := started(t, service.WithMaxLoop(10*time.Millisecond))
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{})
		_, _ = svc.Control(ctx, s.ID, engine.OpArm)
		_, err := svc.Input(ctx, s.ID, "", gesture())
		So(err, ShouldBeNil)

		Convey("Looping it is refused", func() {
			loop := true
			_, err := svc.Play(ctx, s.ID, &loop, "")
			So(errors.Is(err, engine.ErrLoopTooLong), ShouldBeTrue)
		})

		Convey("Looping a region inside the cap is allowed", func() {
			_, err := svc.SetLoop(ctx, s.ID, types.LoopSettings{Region: &types.Region{StartMs: 0, EndMs: 8}})
			So(err, ShouldBeNil)
			loop := true
			v, err := svc.Play(ctx, s.ID, &loop, "")
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "playing")
		})
	})
}

func TestService_Takes(t *testing.T) {
	Convey("Given a session holding a recorded gesture", t, func() {
		svc := started(t)
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{})
		_, _ = svc.Control(ctx, s.ID, engine.OpArm)
		_, _ = svc.Input(ctx, s.ID, "", gesture())

		Convey("When it is saved as a take", func() {
			take, err := svc.SaveTake(ctx, s.ID, "swipe")

			Convey("Then the store describes it", func() {
				So(err, ShouldBeNil)
				So(take.Name, ShouldEqual, "swipe")
				So(take.Family, ShouldEqual, "pointer")
				So(take.Events, ShouldEqual, 3)

				list, err := svc.Takes(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)

				_, blob, err := svc.Take(ctx, "swipe")
				So(err, ShouldBeNil)
				So(blob, ShouldNotBeEmpty)
				So(svc.GetStats().Takes, ShouldEqual, 1)
			})

			Convey("And another session can play it by name", func() {
				other, _ := svc.CreateSession(ctx, types.SessionOptions{})
				v, err := svc.Play(ctx, other.ID, nil, "swipe")
				So(err, ShouldBeNil)
				So(v.State, ShouldEqual, "playing")
				So(v.Events, ShouldEqual, 3)
			})

			Convey("And deleting it removes it", func() {
				So(svc.DeleteTake(ctx, "swipe"), ShouldBeNil)
				_, _, err := svc.Take(ctx, "swipe")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("Invalid names are refused", func() {
			_, err := svc.SaveTake(ctx, s.ID, "../etc")
			So(errors.Is(err, repository.ErrInvalidName), ShouldBeTrue)
		})

		Convey("Loading an unknown take fails", func() {
			_, err := svc.LoadTake(ctx, s.ID, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Tempo(t *testing.T) {
	Convey("Given a session on the host clock", t, func() {
		svc := started(t, service.WithReferenceBPM(120))
		ctx := context.Background()
		s, _ := svc.CreateSession(ctx, types.SessionOptions{Clock: "host"})

		Convey("Beats advance the clock", func() {
			_, err := svc.Tempo(ctx, s.ID, 0, 120)
			So(err, ShouldBeNil)
			v, err := svc.Tempo(ctx, s.ID, 2, 120)
			So(err, ShouldBeNil)
			So(v.NowMs, ShouldEqual, 1000)
			So(v.HostSynced, ShouldBeTrue)
		})

		Convey("A backwards jump is absorbed", func() {
			_, _ = svc.Tempo(ctx, s.ID, 4, 120)
			v, err := svc.Tempo(ctx, s.ID, 1, 120)
			So(err, ShouldBeNil)
			So(v.NowMs, ShouldEqual, 0)
		})

		Convey("A non-positive tempo is refused", func() {
			_, err := svc.Tempo(ctx, s.ID, 1, 0)
			So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}
