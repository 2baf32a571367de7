package meade

import (
	"math"
	"testing"
	"time"

	"github.com/kestrel-observatory/mountd/astrometry"
)

func TestTargetFromRADec(t *testing.T) {
	now := time.Date(2026, 3, 20, 22, 0, 0, 0, time.UTC)
	target := TargetFromRADec(now, testSite, 150, 20)

	if target.RAJ2000 != 150 || target.DecJ2000 != 20 {
		t.Errorf("J2000 coordinates = %v, %v, want 150, 20", target.RAJ2000, target.DecJ2000)
	}

	// A quarter century of precession separates the of-date frame from
	// J2000 by a fraction of a degree.
	shift := math.Abs(astrometry.WrapHourAngle(target.RA - target.RAJ2000))
	if shift < 0.05 || shift > 1.5 {
		t.Errorf("of-date RA shift = %v, want a fraction of a degree", shift)
	}

	lst := astrometry.ApparentSiderealTime(now, testSite)
	wantHA := astrometry.WrapHourAngle(lst - target.RA)
	if math.Abs(target.HA-wantHA) > 1e-9 {
		t.Errorf("HA = %v, want %v", target.HA, wantHA)
	}

	az, alt := astrometry.EquatorialToHorizontal(target.HA, target.Dec, testSite.Latitude)
	if math.Abs(target.Az-az) > 1e-9 || math.Abs(target.Alt-alt) > 1e-9 {
		t.Errorf("horizontal = %v, %v, want %v, %v", target.Az, target.Alt, az, alt)
	}
}

func TestTargetFromAltAzInvertsTargetFromRADec(t *testing.T) {
	now := time.Date(2026, 3, 20, 22, 0, 0, 0, time.UTC)
	eq := TargetFromRADec(now, testSite, 150, 20)
	hor := TargetFromAltAz(now, testSite, eq.Alt, eq.Az)

	if d := math.Abs(astrometry.WrapHourAngle(hor.RAJ2000 - 150)); d > 1e-6 {
		t.Errorf("RAJ2000 off by %v", d)
	}
	if d := math.Abs(hor.DecJ2000 - 20); d > 1e-6 {
		t.Errorf("DecJ2000 off by %v", d)
	}
	if d := math.Abs(astrometry.WrapHourAngle(hor.HA - eq.HA)); d > 1e-6 {
		t.Errorf("HA off by %v", d)
	}
}

func TestTargetFromAltAzStowPointing(t *testing.T) {
	now := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	target := TargetFromAltAz(now, testSite, 40, 180)

	if target.Alt != 40 || target.Az != 180 {
		t.Errorf("horizontal = %v, %v, want 40, 180", target.Alt, target.Az)
	}
	// Due south below the pole, so on the meridian.
	if math.Abs(target.HA) > 1e-9 {
		t.Errorf("HA = %v, want 0", target.HA)
	}
	az, alt := astrometry.EquatorialToHorizontal(target.HA, target.Dec, testSite.Latitude)
	if math.Abs(az-180) > 1e-9 || math.Abs(alt-40) > 1e-9 {
		t.Errorf("round trip horizontal = %v, %v", az, alt)
	}
}
