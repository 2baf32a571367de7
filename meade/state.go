package meade

import (
	"fmt"
	"time"
)

// State describes the mount as seen by the daemon.
type State int

const (
	Disabled State = iota
	Initializing
	Stopped
	Slewing
	Tracking
)

var stateLabels = map[State]string{
	Disabled:     "DISABLED",
	Initializing: "INITIALIZING",
	Stopped:      "STOPPED",
	Slewing:      "SLEWING",
	Tracking:     "TRACKING",
}

// Label returns the upper-case display name used in status payloads.
func (s State) Label() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return "UNKNOWN"
}

// CommandStatus is the numeric result of a daemon command. The values are
// part of the client API and must stay stable.
type CommandStatus int

const (
	Succeeded CommandStatus = 0
	Failed    CommandStatus = 1
	Blocked   CommandStatus = 2

	InvalidControlIP          CommandStatus = 5
	NotConnected              CommandStatus = 10
	InvalidMountConfiguration CommandStatus = 11
	NotDisconnected           CommandStatus = 14
	UnknownParkPosition       CommandStatus = 15

	OutsideHALimits  CommandStatus = 20
	OutsideDecLimits CommandStatus = 21
)

var commandMessages = map[CommandStatus]string{
	Failed:                    "error: command failed",
	Blocked:                   "error: another command is already running",
	InvalidControlIP:          "error: command not accepted from this IP",
	NotConnected:              "error: mount has not been initialized",
	InvalidMountConfiguration: "error: mount handset is not correctly configured",
	NotDisconnected:           "error: mount has already been initialized",
	UnknownParkPosition:       "error: unknown park position",
	OutsideHALimits:           "error: requested coordinates outside HA limits",
	OutsideDecLimits:          "error: requested coordinates outside Dec limits",
}

// Message returns a human-readable explanation for error statuses and the
// empty string for Succeeded.
func (s CommandStatus) Message() string {
	if s == Succeeded {
		return ""
	}
	if m, ok := commandMessages[s]; ok {
		return m
	}
	return fmt.Sprintf("error: Unknown error code %d", int(s))
}

// Snapshot is one full read of the mount pose plus the quantities derived
// from it. RA and Dec are J2000; LST, HA, Alt and Az refer to the moment the
// poll ran. All angles are degrees.
type Snapshot struct {
	Date       time.Time `json:"date"`
	State      State     `json:"state"`
	StateLabel string    `json:"state_label"`

	LST float64 `json:"lst"`
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
	HA  float64 `json:"ha"`
	Alt float64 `json:"alt"`
	Az  float64 `json:"az"`

	SiteLatitude  float64 `json:"site_latitude"`
	SiteLongitude float64 `json:"site_longitude"`
	SiteElevation float64 `json:"site_elevation"`

	MoonSeparation float64 `json:"moon_separation"`
	SunSeparation  float64 `json:"sun_separation"`
}

// ShortStatus is the reduced payload reported while no link is live.
type ShortStatus struct {
	Date       time.Time `json:"date"`
	State      State     `json:"state"`
	StateLabel string    `json:"state_label"`
}
