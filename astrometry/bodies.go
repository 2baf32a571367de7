package astrometry

import (
	"math"
	"time"
)

// SunEquatorial returns the Sun's apparent right ascension and declination
// in degrees at time t. Low-precision series from Meeus, Astronomical
// Algorithms 2nd ed., ch. 25, good to about 0.01 degrees.
func SunEquatorial(t time.Time) (ra, dec float64) {
	jd := JulianDate(t)
	tc := (jd - j2000) / 36525

	l0 := 280.46646 + 36000.76983*tc + 0.0003032*tc*tc
	m := deg2rad(357.52911 + 35999.05029*tc - 0.0001537*tc*tc)
	c := (1.914602-0.004817*tc-0.000014*tc*tc)*math.Sin(m) +
		(0.019993-0.000101*tc)*math.Sin(2*m) +
		0.000289*math.Sin(3*m)

	omega := deg2rad(125.04 - 1934.136*tc)
	lambda := deg2rad(l0 + c - 0.00569 - 0.00478*math.Sin(omega))

	_, _, eps0 := nutation(jd)
	eps := deg2rad(eps0 + 0.00256*math.Cos(omega))

	ra = Wrap360(rad2deg(math.Atan2(math.Cos(eps)*math.Sin(lambda), math.Cos(lambda))))
	dec = rad2deg(math.Asin(clamp(math.Sin(eps) * math.Sin(lambda))))
	return ra, dec
}

// MoonEquatorial returns the Moon's apparent right ascension and declination
// in degrees at time t. Truncated periodic series from Meeus, Astronomical
// Algorithms 2nd ed., ch. 47, good to a few tenths of a degree.
func MoonEquatorial(t time.Time) (ra, dec float64) {
	jd := JulianDate(t)
	tc := (jd - j2000) / 36525

	lp := 218.3164477 + 481267.88123421*tc
	d := deg2rad(297.8501921 + 445267.1114034*tc)
	m := deg2rad(357.5291092 + 35999.0502909*tc)
	mp := deg2rad(134.9633964 + 477198.8675055*tc)
	f := deg2rad(93.2720950 + 483202.0175233*tc)

	lambda := lp +
		6.288774*math.Sin(mp) +
		1.274027*math.Sin(2*d-mp) +
		0.658314*math.Sin(2*d) +
		0.213618*math.Sin(2*mp) -
		0.185116*math.Sin(m) -
		0.114332*math.Sin(2*f)
	beta := 5.128122*math.Sin(f) +
		0.280602*math.Sin(mp+f) +
		0.277693*math.Sin(mp-f) +
		0.173237*math.Sin(2*d-f)

	dpsi, deps, eps0 := nutation(jd)
	lambda += dpsi
	eps := deg2rad(eps0 + deps)

	sl, cl := math.Sin(deg2rad(lambda)), math.Cos(deg2rad(lambda))
	sb, cb := math.Sin(deg2rad(beta)), math.Cos(deg2rad(beta))
	se, ce := math.Sin(eps), math.Cos(eps)

	ra = Wrap360(rad2deg(math.Atan2(sl*ce-(sb/cb)*se, cl)))
	dec = rad2deg(math.Asin(clamp(sb*ce + cb*se*sl)))
	return ra, dec
}

// Separation returns the angular separation in degrees between two
// equatorial positions. Meeus, Astronomical Algorithms 2nd ed., ch. 17.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	sd := math.Sin(deg2rad(dec2-dec1) / 2)
	sa := math.Sin(deg2rad(ra2-ra1) / 2)
	h := sd*sd + math.Cos(deg2rad(dec1))*math.Cos(deg2rad(dec2))*sa*sa
	return rad2deg(2 * math.Asin(clamp(math.Sqrt(h))))
}
