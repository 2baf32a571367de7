package server

import "github.com/kestrel-observatory/mountd/meade"

// Limits holds the mount's soft travel limits in degrees. Pointings are
// checked in the of-date frame the axes actually move in.
type Limits struct {
	HAMin  float64
	HAMax  float64
	DecMin float64
	DecMax float64
}

// Check validates a pointing against the soft limits, hour angle first.
// Values on the boundary are allowed.
func (l Limits) Check(ha, dec float64) meade.CommandStatus {
	if ha < l.HAMin || ha > l.HAMax {
		return meade.OutsideHALimits
	}
	if dec < l.DecMin || dec > l.DecMax {
		return meade.OutsideDecLimits
	}
	return meade.Succeeded
}

// CheckTarget validates a slew target.
func (l Limits) CheckTarget(t meade.Target) meade.CommandStatus {
	return l.Check(t.HA, t.Dec)
}
