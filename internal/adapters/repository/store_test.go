package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/retake/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixed }

func stores(t *testing.T) map[string]repository.Store {
	mr := miniredis.RunT(t)
	fileStore, err := repository.NewFileStore(t.TempDir(), repository.WithNow(fixedNow))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return map[string]repository.Store{
		repository.DriverMemory: repository.NewMemoryStore(repository.WithNow(fixedNow)),
		repository.DriverFile:   fileStore,
		repository.DriverRedis:  repository.NewRedisStore(&redis.Options{Addr: mr.Addr()}, repository.WithNow(fixedNow)),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	blob := []byte(`{"version":2,"events":[]}`)

	for driver, store := range stores(t) {
		store := store
		Convey("Given the "+driver+" store", t, func() {
			So(store.Driver(), ShouldEqual, driver)

			Convey("Put then Get returns the blob", func() {
				taken, err := store.Put(ctx, "gesture-1", blob)
				So(err, ShouldBeNil)
				So(taken.Version, ShouldEqual, 1)
				So(taken.SavedAt.Equal(fixed), ShouldBeTrue)

				got, err := store.Get(ctx, "gesture-1")
				So(err, ShouldBeNil)
				So(string(got.Blob), ShouldEqual, string(blob))
				So(got.Version, ShouldEqual, 1)
				So(got.SavedAt.Equal(fixed), ShouldBeTrue)

				So(store.Delete(ctx, "gesture-1"), ShouldBeNil)
			})

			Convey("Put again bumps the version", func() {
				store.Put(ctx, "again", blob)
				taken, err := store.Put(ctx, "again", []byte(`{"version":2}`))
				So(err, ShouldBeNil)
				So(taken.Version, ShouldEqual, 2)

				got, _ := store.Get(ctx, "again")
				So(string(got.Blob), ShouldEqual, `{"version":2}`)
				So(store.Delete(ctx, "again"), ShouldBeNil)
			})

			Convey("List is ordered by name", func() {
				store.Put(ctx, "b", blob)
				store.Put(ctx, "a", blob)
				list, err := store.List(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 2)
				So(list[0].Name, ShouldEqual, "a")
				So(list[1].Name, ShouldEqual, "b")

				store.Delete(ctx, "a")
				store.Delete(ctx, "b")
			})

			Convey("Unknown names report ErrNotFound", func() {
				_, err := store.Get(ctx, "missing")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(store.Delete(ctx, "missing"), repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Bad names and empty blobs are refused", func() {
				_, err := store.Put(ctx, "../escape", blob)
				So(errors.Is(err, repository.ErrInvalidName), ShouldBeTrue)
				_, err = store.Put(ctx, "", blob)
				So(errors.Is(err, repository.ErrInvalidName), ShouldBeTrue)
				_, err = store.Put(ctx, "empty", nil)
				So(errors.Is(err, repository.ErrEmptyTake), ShouldBeTrue)
			})
		})
	}
}

func TestFileStore(t *testing.T) {
	Convey("Given a file store", t, func() {
		dir := t.TempDir()
		store, err := repository.NewFileStore(dir)
		So(err, ShouldBeNil)

		Convey("Takes are written as readable files without leftovers", func() {
			_, err := store.Put(context.Background(), "take", []byte(`{"version":2}`))
			So(err, ShouldBeNil)

			entries, _ := os.ReadDir(dir)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Name(), ShouldEqual, "take.take.json")

			data, _ := os.ReadFile(filepath.Join(dir, "take.take.json"))
			So(string(data), ShouldContainSubstring, `"take": {`)
		})

		Convey("Non JSON blobs are refused", func() {
			_, err := store.Put(context.Background(), "raw", []byte("not json"))
			So(errors.Is(err, repository.ErrEmptyTake), ShouldBeTrue)
		})

		Convey("Unrelated files are ignored by List", func() {
			os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
			list, err := store.List(context.Background())
			So(err, ShouldBeNil)
			So(list, ShouldBeEmpty)
		})
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	Convey("Open picks the driver", t, func() {
		s, err := repository.Open(ctx, repository.Settings{})
		So(err, ShouldBeNil)
		So(s.Driver(), ShouldEqual, repository.DriverMemory)

		s, err = repository.Open(ctx, repository.Settings{Driver: repository.DriverFile, Dir: t.TempDir()})
		So(err, ShouldBeNil)
		So(s.Driver(), ShouldEqual, repository.DriverFile)

		mr := miniredis.RunT(t)
		s, err = repository.Open(ctx, repository.Settings{Driver: repository.DriverRedis, RedisAddr: mr.Addr(), RedisPrefix: "test:"})
		So(err, ShouldBeNil)
		_, err = s.Put(ctx, "x", []byte(`{}`))
		So(err, ShouldBeNil)
		So(mr.Exists("test:take:x"), ShouldBeTrue)
		So(s.Close(), ShouldBeNil)

		_, err = repository.Open(ctx, repository.Settings{Driver: "tape"})
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
	})

	Convey("Open fails when Redis is unreachable", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := repository.Open(ctx, repository.Settings{Driver: repository.DriverRedis, RedisAddr: addr})
		So(err, ShouldNotBeNil)
	})
}
