// Package astrometry provides the coordinate math the mount daemon needs:
// sidereal time, equatorial/horizontal transforms, precession between J2000
// and the equinox of date, and low-precision solar and lunar positions.
//
// All public angles are degrees. Azimuth is measured from north through
// east, hour angle is positive west of the meridian, longitude is positive
// east.
package astrometry

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

const j2000 = 2451545.0

// Site is an observing location. Elevation is meters above sea level.
type Site struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// JulianDate converts a time to a Julian date (UT).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/(1e9*86400)
}

// GMST returns Greenwich mean sidereal time in degrees [0, 360).
func GMST(t time.Time) float64 {
	return Wrap360(rad2deg(satellite.ThetaG_JD(JulianDate(t))))
}

// ApparentSiderealTime returns the local apparent sidereal time at the site
// in degrees [0, 360).
func ApparentSiderealTime(t time.Time, site Site) float64 {
	jd := JulianDate(t)
	gmst := rad2deg(satellite.ThetaG_JD(jd))
	dpsi, deps, eps0 := nutation(jd)
	eqeq := dpsi * math.Cos(deg2rad(eps0+deps))
	return Wrap360(gmst + eqeq + site.Longitude)
}

// nutation returns the nutation in longitude and obliquity plus the mean
// obliquity of the ecliptic, all in degrees. Truncated series from Meeus,
// Astronomical Algorithms 2nd ed., ch. 22 (good to about 0.5 arcseconds).
func nutation(jd float64) (dpsi, deps, eps0 float64) {
	t := (jd - j2000) / 36525
	omega := deg2rad(125.04452 - 1934.136261*t)
	ls := deg2rad(280.4665 + 36000.7698*t)
	lm := deg2rad(218.3165 + 481267.8813*t)

	dpsi = (-17.20*math.Sin(omega) - 1.32*math.Sin(2*ls) - 0.23*math.Sin(2*lm) + 0.21*math.Sin(2*omega)) / 3600
	deps = (9.20*math.Cos(omega) + 0.57*math.Cos(2*ls) + 0.10*math.Cos(2*lm) - 0.09*math.Cos(2*omega)) / 3600
	eps0 = 23.43929111 - 0.01300417*t
	return dpsi, deps, eps0
}

// equhor converts between hour-angle/declination and azimuth/altitude. The
// transform is an involution, so the same routine serves both directions.
// Phi is the observer's latitude. Arguments are in radians.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(clamp(sq))

	cp := (sy - (sphi * sq)) / (cphi * math.Cos(q))
	p := math.Acos(clamp(cp))
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

// EquatorialToHorizontal converts hour angle and declination to azimuth and
// altitude at the given latitude.
func EquatorialToHorizontal(ha, dec, latitude float64) (az, alt float64) {
	p, q := equhor(deg2rad(ha), deg2rad(dec), deg2rad(latitude))
	return rad2deg(p), rad2deg(q)
}

// HorizontalToEquatorial converts azimuth and altitude to hour angle and
// declination at the given latitude. The hour angle comes back wrapped to
// (-180, 180].
func HorizontalToEquatorial(az, alt, latitude float64) (ha, dec float64) {
	p, q := equhor(deg2rad(az), deg2rad(alt), deg2rad(latitude))
	return WrapHourAngle(rad2deg(p)), rad2deg(q)
}

// precessionAngles returns the IAU 1976 precession angles zeta, z and theta
// in degrees for precessing from J2000.0 to the epoch of jd. Meeus,
// Astronomical Algorithms 2nd ed., ch. 21.
func precessionAngles(jd float64) (zeta, z, theta float64) {
	t := (jd - j2000) / 36525
	zeta = (2306.2181*t + 0.30188*t*t + 0.017998*t*t*t) / 3600
	z = (2306.2181*t + 1.09468*t*t + 0.018203*t*t*t) / 3600
	theta = (2004.3109*t - 0.42665*t*t - 0.041833*t*t*t) / 3600
	return zeta, z, theta
}

// EquatorialOfDate precesses J2000.0 right ascension and declination to the
// equinox of date at time t.
func EquatorialOfDate(ra2000, dec2000 float64, t time.Time) (ra, dec float64) {
	zeta, z, theta := precessionAngles(JulianDate(t))
	st, ct := math.Sin(deg2rad(theta)), math.Cos(deg2rad(theta))
	sd, cd := math.Sin(deg2rad(dec2000)), math.Cos(deg2rad(dec2000))
	sa, ca := math.Sin(deg2rad(ra2000+zeta)), math.Cos(deg2rad(ra2000+zeta))

	a := cd * sa
	b := ct*cd*ca - st*sd
	c := st*cd*ca + ct*sd
	return Wrap360(rad2deg(math.Atan2(a, b)) + z), rad2deg(math.Asin(clamp(c)))
}

// EquatorialJ2000 precesses right ascension and declination of the equinox
// of date at time t back to J2000.0.
func EquatorialJ2000(ra, dec float64, t time.Time) (ra2000, dec2000 float64) {
	zeta, z, theta := precessionAngles(JulianDate(t))
	st, ct := math.Sin(deg2rad(theta)), math.Cos(deg2rad(theta))
	sd, cd := math.Sin(deg2rad(dec)), math.Cos(deg2rad(dec))
	sa, ca := math.Sin(deg2rad(ra-z)), math.Cos(deg2rad(ra-z))

	a := cd * sa
	b := ct*cd*ca + st*sd
	c := -st*cd*ca + ct*sd
	return Wrap360(rad2deg(math.Atan2(a, b)) - zeta), rad2deg(math.Asin(clamp(c)))
}

// Wrap360 wraps an angle to [0, 360) degrees.
func Wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// WrapHourAngle wraps an hour angle to (-180, 180] degrees.
func WrapHourAngle(deg float64) float64 {
	deg = Wrap360(deg)
	if deg > 180 {
		deg -= 360
	}
	return deg
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
