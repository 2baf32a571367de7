package astrometry

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestGMST(t *testing.T) {
	for _, test := range []struct {
		name string
		time time.Time
		want float64
	}{
		{"j2000", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 280.46062},
		// Meeus, Astronomical Algorithms 2nd ed., example 12.b.
		{"meeus_12b", time.Date(1987, 4, 10, 19, 21, 0, 0, time.UTC), 128.73787},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := GMST(test.time); math.Abs(got-test.want) > 1e-3 {
				t.Errorf("GMST(%v) = %.5f, want %.5f", test.time, got, test.want)
			}
		})
	}
}

func TestApparentSiderealTime(t *testing.T) {
	when := time.Date(1987, 4, 10, 19, 21, 0, 0, time.UTC)
	// Greenwich apparent sidereal time from Meeus example 12.b.
	if got := ApparentSiderealTime(when, Site{}); math.Abs(got-128.73691) > 2e-3 {
		t.Errorf("ApparentSiderealTime(greenwich) = %.5f, want 128.73691", got)
	}
	// An east longitude shifts the answer by exactly that longitude.
	site := Site{Latitude: 42.36, Longitude: -71.09}
	want := Wrap360(128.73691 + site.Longitude)
	if got := ApparentSiderealTime(when, site); math.Abs(got-want) > 2e-3 {
		t.Errorf("ApparentSiderealTime(site) = %.5f, want %.5f", got, want)
	}
}

func TestEquatorialToHorizontal(t *testing.T) {
	// An object on the meridian sits due south at altitude 90 - lat + dec.
	az, alt := EquatorialToHorizontal(0, 10, 40)
	if diff := cmp.Diff([]float64{az, alt}, []float64{180, 60}, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("meridian pointing differs: %s", diff)
	}

	// West of the meridian means a western azimuth and vice versa.
	az, _ = EquatorialToHorizontal(30, 10, 40)
	if az <= 180 {
		t.Errorf("western hour angle gave azimuth %.3f, want > 180", az)
	}
	ha, _ := HorizontalToEquatorial(90, 30, 40)
	if ha >= 0 {
		t.Errorf("eastern azimuth gave hour angle %.3f, want < 0", ha)
	}
}

func TestHorizontalRoundTrip(t *testing.T) {
	const lat = 42.36
	for _, test := range []struct {
		ha, dec float64
	}{
		{0, 0},
		{30, 20},
		{-45, -5},
		{120, 70},
		{-179, 42},
	} {
		az, alt := EquatorialToHorizontal(test.ha, test.dec, lat)
		ha, dec := HorizontalToEquatorial(az, alt, lat)
		got := []float64{ha, dec}
		want := []float64{test.ha, test.dec}
		if diff := cmp.Diff(got, want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("round trip of (%v, %v) differs: %s", test.ha, test.dec, diff)
		}
	}
}

func TestEquatorialOfDate(t *testing.T) {
	// theta Persei precessed from J2000.0 to 2028 November 13.19, proper
	// motion already applied. Meeus example 21.b.
	when := time.Date(2028, 11, 13, 4, 33, 36, 0, time.UTC)
	ra, dec := EquatorialOfDate(41.054063, 49.227750, when)
	got := []float64{ra, dec}
	want := []float64{41.547214, 49.348483}
	if diff := cmp.Diff(got, want, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("EquatorialOfDate differs: %s", diff)
	}
}

func TestEquatorialJ2000RoundTrip(t *testing.T) {
	when := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	for _, test := range []struct {
		ra, dec float64
	}{
		{0, 0},
		{41.054063, 49.227750},
		{201.298, -11.161},
		{359.5, 85},
	} {
		ra, dec := EquatorialOfDate(test.ra, test.dec, when)
		ra0, dec0 := EquatorialJ2000(ra, dec, when)
		got := []float64{ra0, dec0}
		want := []float64{test.ra, test.dec}
		if diff := cmp.Diff(got, want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("precession round trip of (%v, %v) differs: %s", test.ra, test.dec, diff)
		}
	}
}

func TestWrap360(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{-90, 270},
		{360, 0},
		{720.5, 0.5},
		{180, 180},
		{-0.25, 359.75},
	} {
		if got := Wrap360(test.in); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("Wrap360(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestWrapHourAngle(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{190, -170},
		{180, 180},
		{-180, 180},
		{359, -1},
		{-359, 1},
		{0, 0},
	} {
		if got := WrapHourAngle(test.in); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("WrapHourAngle(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}
