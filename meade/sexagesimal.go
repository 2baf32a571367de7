package meade

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kestrel-observatory/mountd/astrometry"
)

// degreeMark is the raw byte the handset uses between degrees and
// arcminutes. It is not valid UTF-8, so angle strings are handled bytewise.
const degreeMark byte = 0xdf

var degreeSep = string([]byte{degreeMark})

func isAngleSeparator(b byte) bool {
	return b == ':' || b == '*' || b == '\'' || b == degreeMark
}

func splitAngle(s string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(s); i++ {
		if isAngleSeparator(s[i]) {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	fields = append(fields, s[start:])
	// A trailing separator ("+45*10'") is fine; an empty field anywhere
	// else is not.
	if len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

// parseSexagesimal converts a handset angle like "+10:30:00", "-05*30'00"
// or "71:09" to decimal degrees. Fields may be separated by ':', '*', '''
// or the degree mark; a leading sign on the first field applies to the
// whole angle. The seconds field may be omitted and any field may carry a
// decimal fraction.
func parseSexagesimal(s string) (float64, error) {
	fields := splitAngle(strings.TrimSpace(s))
	if len(fields) < 2 || len(fields) > 3 {
		return 0, errors.Errorf("malformed angle %q", s)
	}

	sign := 1.0
	head := fields[0]
	switch {
	case strings.HasPrefix(head, "+"):
		head = head[1:]
	case strings.HasPrefix(head, "-"):
		sign = -1
		head = head[1:]
	}
	fields[0] = head

	value := 0.0
	for i, div := range []float64{1, 60, 3600} {
		if i >= len(fields) {
			break
		}
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || v < 0 {
			return 0, errors.Errorf("malformed angle %q", s)
		}
		value += v / div
	}
	return sign * value, nil
}

// parseHours converts a sexagesimal hour string like "10:30:00" to degrees.
func parseHours(s string) (float64, error) {
	v, err := parseSexagesimal(s)
	if err != nil {
		return 0, err
	}
	return v * 15, nil
}

// formatHours renders degrees as the "HH:MM:SS" hour string used by the
// target RA and sidereal time commands.
func formatHours(deg float64) string {
	secs := int(math.Round(astrometry.Wrap360(deg) / 15 * 3600))
	secs %= 24 * 3600
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// formatSignedDegrees renders degrees as the signed "sDD<deg>MM:SS" string
// used by the declination and altitude channels.
func formatSignedDegrees(deg float64) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
		deg = -deg
	}
	secs := int(math.Round(deg * 3600))
	return fmt.Sprintf("%s%02d%s%02d:%02d", sign, secs/3600, degreeSep, (secs/60)%60, secs%60)
}

// formatDegrees renders an unsigned angle as the "DDD<deg>MM:SS" string
// used by the azimuth channel.
func formatDegrees(deg float64) string {
	secs := int(math.Round(astrometry.Wrap360(deg) * 3600))
	secs %= 360 * 3600
	return fmt.Sprintf("%03d%s%02d:%02d", secs/3600, degreeSep, (secs/60)%60, secs%60)
}
