package settings

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"motorlab/core"
)

func TestSetGet(t *testing.T) {
	Convey("Given default settings", t, func() {
		s := New(core.DefaultCalibration(0, 0), &MemoryStore{})

		Convey("values are clamped to their range", func() {
			v, err := s.Set("KM", 20000)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, float32(10000))

			v, err = s.Set("td", -1)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, float32(0))

			got, _ := s.Get("TD")
			So(got, ShouldEqual, float32(0))
		})

		Convey("names are case insensitive", func() {
			_, err := s.Set("biasff", 0.2)
			So(err, ShouldBeNil)
			got, _ := s.Get("BIASFF")
			So(got, ShouldAlmostEqual, 0.2, 1e-6)
		})

		Convey("unknown names are rejected", func() {
			_, err := s.Set("KI", 1)
			So(errors.Is(err, ErrUnknownSetting), ShouldBeTrue)
			_, err = s.Get("KI")
			So(errors.Is(err, ErrUnknownSetting), ShouldBeTrue)
		})

		Convey("changing a model parameter re-derives the gains", func() {
			before := s.Calibration()
			_, err := s.Set("TD", 0.1)
			So(err, ShouldBeNil)
			after := s.Calibration()
			So(after.Kp, ShouldBeGreaterThan, before.Kp)
			So(after.Kd, ShouldBeGreaterThan, before.Kd)

			want := after
			want.DeriveGains()
			So(after.Kp, ShouldEqual, want.Kp)
		})

		Convey("a direct gain is an override", func() {
			_, err := s.Set("KP", 0.5)
			So(err, ShouldBeNil)
			So(s.Calibration().Kp, ShouldEqual, float32(0.5))
			So(s.Calibration().Kd, ShouldEqual, core.DefaultCalibration(0, 0).Kd)
		})

		Convey("Init restores defaults", func() {
			s.Set("KP", 0.5)
			s.Init()
			So(s.Calibration(), ShouldResemble, core.DefaultCalibration(0, 0))
		})

		Convey("Format uses the query precision", func() {
			line, err := s.Format("km")
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "KM = 2064.7")

			line, _ = s.Format("BIASFF")
			So(line, ShouldEqual, "BIASFF = 0.145")
		})

		Convey("Print lists every setting", func() {
			var buf bytes.Buffer
			s.Print(&buf)
			for _, name := range Names() {
				So(buf.String(), ShouldContainSubstring, name+" = ")
			}
		})

		Convey("Validated rejects a zero time constant", func() {
			s.Set("TD", 0)
			_, err := s.Validated()
			So(errors.Is(err, core.ErrInvalidCalibration), ShouldBeTrue)
		})
	})
}

func TestReadWrite(t *testing.T) {
	Convey("Given settings over a memory store", t, func() {
		store := &MemoryStore{}
		s := New(core.DefaultCalibration(0, 0), store)

		Convey("reading before any write fails", func() {
			So(errors.Is(s.Read(), ErrNoSettings), ShouldBeTrue)
		})

		Convey("a written record reads back", func() {
			s.Set("KM", 1500)
			So(s.Write(), ShouldBeNil)
			s.Init()
			So(s.Read(), ShouldBeNil)
			got, _ := s.Get("KM")
			So(got, ShouldEqual, float32(1500))
		})

		Convey("an invalid stored record is refused", func() {
			bad := core.DefaultCalibration(0, 0)
			bad.Km = float32(math.NaN())
			store.Save(bad)
			So(errors.Is(s.Read(), core.ErrInvalidCalibration), ShouldBeTrue)
			So(s.Calibration().Km, ShouldEqual, float32(core.DefaultKm))
		})
	})
}

func TestStormStore(t *testing.T) {
	Convey("Given a fresh storm file", t, func() {
		path := filepath.Join(t.TempDir(), "settings.db")
		store, err := OpenStorm(path)
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("an empty file has no settings", func() {
			_, err := store.Load()
			So(errors.Is(err, ErrNoSettings), ShouldBeTrue)
		})

		Convey("a saved calibration loads back unchanged", func() {
			cal := core.DefaultCalibration(0, 0)
			cal.ControlFlags = core.FlagSpeedError
			cal.Kp = 0.25
			So(store.Save(cal), ShouldBeNil)

			got, err := store.Load()
			So(err, ShouldBeNil)
			So(got, ShouldResemble, cal)
		})
	})
}
