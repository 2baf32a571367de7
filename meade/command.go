package meade

import (
	"time"

	"github.com/kestrel-observatory/mountd/astrometry"
)

// Command is a request accepted by the mount worker. The concrete types
// below are the only implementations.
type Command interface {
	isCommand()
}

// Target carries one pointing in every frame the handset and the limit
// checks need: J2000 and of-date equatorial, plus the horizontal pointing
// and hour angle at the site for the given time.
type Target struct {
	Time     time.Time
	RAJ2000  float64
	DecJ2000 float64
	RA       float64
	Dec      float64
	HA       float64
	Alt      float64
	Az       float64
}

// TargetFromRADec builds a target from J2000 equatorial coordinates.
func TargetFromRADec(t time.Time, site astrometry.Site, ra, dec float64) Target {
	raApp, decApp := astrometry.EquatorialOfDate(ra, dec, t)
	lst := astrometry.ApparentSiderealTime(t, site)
	ha := astrometry.WrapHourAngle(lst - raApp)
	az, alt := astrometry.EquatorialToHorizontal(ha, decApp, site.Latitude)
	return Target{
		Time:     t,
		RAJ2000:  astrometry.Wrap360(ra),
		DecJ2000: dec,
		RA:       raApp,
		Dec:      decApp,
		HA:       ha,
		Alt:      alt,
		Az:       az,
	}
}

// TargetFromAltAz builds a target from horizontal coordinates.
func TargetFromAltAz(t time.Time, site astrometry.Site, alt, az float64) Target {
	ha, dec := astrometry.HorizontalToEquatorial(az, alt, site.Latitude)
	lst := astrometry.ApparentSiderealTime(t, site)
	ra := astrometry.Wrap360(lst - ha)
	raJ2000, decJ2000 := astrometry.EquatorialJ2000(ra, dec, t)
	return Target{
		Time:     t,
		RAJ2000:  raJ2000,
		DecJ2000: decJ2000,
		RA:       ra,
		Dec:      dec,
		HA:       ha,
		Alt:      alt,
		Az:       az,
	}
}

// InitializeCommand connects the serial link and runs the handset
// power-on sequence.
type InitializeCommand struct{}

// ShutdownCommand slews to the saved park position and drops the link.
type ShutdownCommand struct{}

// StopCommand halts motion immediately and latches the force-stop flag.
type StopCommand struct{}

// SlewCommand moves to a target without tracking afterwards.
type SlewCommand struct{ Target Target }

// TrackCommand moves to a target and sidereal-tracks it afterwards.
type TrackCommand struct{ Target Target }

// SlewAltAzCommand moves to a fixed horizontal pointing.
type SlewAltAzCommand struct{ Target Target }

// ParkCommand moves to a stow pointing without tracking.
type ParkCommand struct{ Target Target }

// SyncCommand tells the handset its current pointing equals the target.
type SyncCommand struct{ Target Target }

// ZeroCommand resets the pointing model to hour angle zero on the meridian
// and saves it as the park position.
type ZeroCommand struct{}

// OffsetCommand nudges the pointing by small deltas using guide pulses.
type OffsetCommand struct {
	DRA  float64
	DDec float64
}

func (InitializeCommand) isCommand() {}
func (ShutdownCommand) isCommand()   {}
func (StopCommand) isCommand()       {}
func (SlewCommand) isCommand()       {}
func (TrackCommand) isCommand()      {}
func (SlewAltAzCommand) isCommand()  {}
func (ParkCommand) isCommand()       {}
func (SyncCommand) isCommand()       {}
func (ZeroCommand) isCommand()       {}
func (OffsetCommand) isCommand()     {}
