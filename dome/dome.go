// Package dome forwards mount pointing changes to the dome controller so
// the slit can follow the telescope.
package dome

// Dome receives pointing notifications from the mount worker. Calls are
// made from the worker goroutine and should return quickly.
type Dome interface {
	// NotifyRADec reports an equatorial slew. tracking is true when the
	// mount will sidereal-track after arrival.
	NotifyRADec(ra, dec float64, tracking bool) error
	// NotifyAltAz reports a slew to a fixed horizontal pointing.
	NotifyAltAz(alt, az float64) error
	// NotifyParked reports that the mount is stowing.
	NotifyParked() error
	// NotifyStopped reports that motion was halted.
	NotifyStopped() error
}

// Noop is a Dome for sites that have no dome controller.
type Noop struct{}

func (Noop) NotifyRADec(ra, dec float64, tracking bool) error { return nil }
func (Noop) NotifyAltAz(alt, az float64) error                { return nil }
func (Noop) NotifyParked() error                              { return nil }
func (Noop) NotifyStopped() error                             { return nil }
