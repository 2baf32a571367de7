// Package meade drives an equatorial mount through its Meade-protocol
// handset over a serial line.
package meade

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kestrel-observatory/mountd/astrometry"
	"github.com/kestrel-observatory/mountd/dome"
	"github.com/kestrel-observatory/mountd/internal/logger"
)

const (
	// ackProbeInterval spaces the alignment probes sent while the handset
	// runs its power-on test.
	ackProbeInterval = 5 * time.Second
	// displayPollInterval spaces the display polls during homing.
	displayPollInterval = time.Second
	// syncSettleDelay gives the handset time to rebuild its pointing model
	// after a sync before further commands.
	syncSettleDelay = 2 * time.Second

	// pulseLimit caps guide-pulse offsets at one arcminute per axis.
	pulseLimit = 1.0 / 60
	// pulseMsPerDegree converts an offset to a pulse duration at the
	// handset's guide rate.
	pulseMsPerDegree = 3.6e5

	// Initialization rejects a handset whose stored site disagrees with the
	// configured one by more than these amounts. The sidereal time check
	// catches a wrong longitude or clock that the coarse coordinate checks
	// miss.
	siteLatitudeTolerance  = 0.5
	siteLongitudeTolerance = 0.5
	siteLSTTolerance       = 0.16667
)

// Options configures a Mount.
type Options struct {
	// Device and Baud name the handset's serial port. ReadTimeout bounds
	// each read; a silent handset surfaces as a failed command rather than
	// a hang.
	Device      string
	Baud        int
	ReadTimeout time.Duration

	// Open overrides how the port is opened, for the simulator and tests.
	Open func() (Port, error)

	Site astrometry.Site

	// InitializeTimeout bounds the whole power-on sequence.
	InitializeTimeout time.Duration

	// SlewPoll and IdlePoll set how often the worker refreshes the handset
	// state while slewing and while settled.
	SlewPoll time.Duration
	IdlePoll time.Duration

	Dome   dome.Dome
	Logger *zap.SugaredLogger
}

type request struct {
	cmd   Command
	reply chan CommandStatus
}

// Mount owns the serial link to the handset. All protocol traffic happens
// on the Run goroutine, which serializes commands with the state polls;
// other goroutines talk to it through Do and the Store accessors.
type Mount struct {
	opts  Options
	log   *zap.SugaredLogger
	dome  dome.Dome
	store *Store

	requests chan request

	// Owned by the Run goroutine.
	codec    *codec
	tracking bool

	ackInterval time.Duration
	displayPoll time.Duration
	settleDelay time.Duration
}

func New(opts Options) *Mount {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Dome == nil {
		opts.Dome = dome.Noop{}
	}
	if opts.Open == nil {
		opts.Open = func() (Port, error) {
			return OpenPort(opts.Device, opts.Baud, opts.ReadTimeout)
		}
	}
	if opts.InitializeTimeout <= 0 {
		opts.InitializeTimeout = 90 * time.Second
	}
	if opts.SlewPoll <= 0 {
		opts.SlewPoll = time.Second
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = 5 * time.Second
	}
	return &Mount{
		opts:        opts,
		log:         opts.Logger,
		dome:        opts.Dome,
		store:       NewStore(),
		requests:    make(chan request, 1),
		ackInterval: ackProbeInterval,
		displayPoll: displayPollInterval,
		settleDelay: syncSettleDelay,
	}
}

func (m *Mount) State() State { return m.store.State() }

// Snapshot returns the current state and the last published snapshot. The
// snapshot is nil while Disabled or Initializing.
func (m *Mount) Snapshot() (State, *Snapshot) { return m.store.Snapshot() }

// Status returns the full snapshot when the link is live, or a ShortStatus
// otherwise.
func (m *Mount) Status() interface{} {
	state, snap := m.store.Snapshot()
	if snap == nil {
		return ShortStatus{Date: time.Now().UTC(), State: state, StateLabel: state.Label()}
	}
	return *snap
}

func (m *Mount) ForceStopped() bool { return m.store.ForceStopped() }

func (m *Mount) ClearForceStop() { m.store.SetForceStop(false) }

// Completion returns a channel closed at the next slew completion or force
// stop.
func (m *Mount) Completion() <-chan struct{} { return m.store.Completion() }

// Updates returns a channel closed at the next state change.
func (m *Mount) Updates() <-chan struct{} { return m.store.Updates() }

// Do submits a command to the worker and waits for its result. A canceled
// context fails the wait, not the command: once accepted the command still
// runs to completion on the worker.
func (m *Mount) Do(ctx context.Context, cmd Command) CommandStatus {
	req := request{cmd: cmd, reply: make(chan CommandStatus, 1)}
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return Failed
	}
	select {
	case status := <-req.reply:
		return status
	case <-ctx.Done():
		return Failed
	}
}

// Run owns the serial link until ctx is canceled, alternating between
// serving commands and refreshing the handset state. The refresh interval
// tightens while a slew is in progress.
func (m *Mount) Run(ctx context.Context) error {
	defer m.dropLink()
	for {
		interval := m.opts.IdlePoll
		if m.store.State() == Slewing {
			interval = m.opts.SlewPoll
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case req := <-m.requests:
			timer.Stop()
			req.reply <- m.dispatch(ctx, req.cmd)
		case <-timer.C:
			if m.codec == nil {
				continue
			}
			if err := m.refresh(); err != nil {
				m.lostLink(err)
			}
		}
	}
}

// dispatch runs one command, bracketing it with state refreshes so the
// published snapshot reflects the handset before and after. Initialize and
// Shutdown manage the link themselves and skip the bracket.
func (m *Mount) dispatch(ctx context.Context, cmd Command) CommandStatus {
	switch cmd.(type) {
	case InitializeCommand:
		return m.initialize(ctx)
	case ShutdownCommand:
		return m.shutdown()
	}
	if m.codec == nil {
		return NotConnected
	}
	if err := m.refresh(); err != nil {
		m.lostLink(err)
		return Failed
	}
	status, err := m.execute(ctx, cmd)
	if err != nil {
		if errors.Is(err, errShortRead) {
			m.log.Warnw("command failed", "error", err)
			return Failed
		}
		m.lostLink(err)
		return Failed
	}
	if err := m.refresh(); err != nil {
		m.lostLink(err)
	}
	return status
}

func (m *Mount) execute(ctx context.Context, cmd Command) (CommandStatus, error) {
	switch cmd := cmd.(type) {
	case StopCommand:
		return m.stop()
	case SlewCommand:
		m.notifyDome("slew", func(d dome.Dome) error {
			return d.NotifyRADec(cmd.Target.RAJ2000, cmd.Target.DecJ2000, false)
		})
		return m.slewHorizontal(cmd.Target)
	case TrackCommand:
		m.notifyDome("track", func(d dome.Dome) error {
			return d.NotifyRADec(cmd.Target.RAJ2000, cmd.Target.DecJ2000, true)
		})
		return m.slewEquatorial(cmd.Target)
	case SlewAltAzCommand:
		m.notifyDome("altaz", func(d dome.Dome) error {
			return d.NotifyAltAz(cmd.Target.Alt, cmd.Target.Az)
		})
		return m.slewHorizontal(cmd.Target)
	case ParkCommand:
		m.notifyDome("park", func(d dome.Dome) error { return d.NotifyParked() })
		return m.slewHorizontal(cmd.Target)
	case SyncCommand:
		return m.sync(cmd.Target)
	case ZeroCommand:
		return m.zero(ctx)
	case OffsetCommand:
		return m.offset(ctx, cmd.DRA, cmd.DDec)
	}
	m.log.Errorw("unhandled command", "command", fmt.Sprintf("%T", cmd))
	return Failed, nil
}

// refresh polls the handset and publishes a fresh snapshot. While a slew is
// in progress the handset cannot report RA/Dec reliably, so the equatorial
// pointing is derived from the axis positions instead.
func (m *Mount) refresh() error {
	now := time.Now().UTC()

	lstStr, err := m.codec.sendString(cmdSiderealTime)
	if err != nil {
		return err
	}
	lst, err := parseHours(lstStr)
	if err != nil {
		return errors.Wrap(err, "parsing sidereal time")
	}
	altStr, err := m.codec.sendString(cmdAltitude)
	if err != nil {
		return err
	}
	alt, err := parseSexagesimal(altStr)
	if err != nil {
		return errors.Wrap(err, "parsing altitude")
	}
	azStr, err := m.codec.sendString(cmdAzimuth)
	if err != nil {
		return err
	}
	az, err := parseSexagesimal(azStr)
	if err != nil {
		return errors.Wrap(err, "parsing azimuth")
	}
	moving, err := m.moving()
	if err != nil {
		return err
	}

	var ra, dec, ha float64
	var state State
	if moving {
		ha, dec = astrometry.HorizontalToEquatorial(az, alt, m.opts.Site.Latitude)
		ra = astrometry.Wrap360(lst - ha)
		state = Slewing
	} else {
		raStr, err := m.codec.sendString(cmdRA)
		if err != nil {
			return err
		}
		ra, err = parseHours(raStr)
		if err != nil {
			return errors.Wrap(err, "parsing right ascension")
		}
		decStr, err := m.codec.sendString(cmdDec)
		if err != nil {
			return err
		}
		dec, err = parseSexagesimal(decStr)
		if err != nil {
			return errors.Wrap(err, "parsing declination")
		}
		ha = astrometry.WrapHourAngle(lst - ra)
		if m.tracking {
			state = Tracking
		} else {
			state = Stopped
		}
	}

	raJ2000, decJ2000 := astrometry.EquatorialJ2000(ra, dec, now)
	sunRA, sunDec := astrometry.SunEquatorial(now)
	moonRA, moonDec := astrometry.MoonEquatorial(now)

	m.store.Publish(&Snapshot{
		Date:           now,
		State:          state,
		StateLabel:     state.Label(),
		LST:            lst,
		RA:             raJ2000,
		Dec:            decJ2000,
		HA:             ha,
		Alt:            alt,
		Az:             az,
		SiteLatitude:   m.opts.Site.Latitude,
		SiteLongitude:  m.opts.Site.Longitude,
		SiteElevation:  m.opts.Site.Elevation,
		MoonSeparation: astrometry.Separation(ra, dec, moonRA, moonDec),
		SunSeparation:  astrometry.Separation(ra, dec, sunRA, sunDec),
	})
	return nil
}

// moving asks the handset for the remaining slew distance; any non-empty
// reply means the axes are in motion.
func (m *Mount) moving() (bool, error) {
	dist, err := m.codec.sendString(cmdDistance)
	if err != nil {
		return false, err
	}
	return dist != "", nil
}

// setTracking switches the handset between polar mode, where it sidereal
// tracks, and land mode, where the axes hold still. Neither command
// produces a reply.
func (m *Mount) setTracking(enabled bool) error {
	body := cmdLandMode
	if enabled {
		body = cmdPolarMode
	}
	if err := m.codec.sendNone(body); err != nil {
		return err
	}
	m.tracking = enabled
	return nil
}

// slewEquatorial points at an of-date RA/Dec and leaves the handset
// tracking it.
func (m *Mount) slewEquatorial(t Target) (CommandStatus, error) {
	if err := m.setTracking(true); err != nil {
		return Failed, err
	}
	ok, err := m.codec.sendBool(cmdTargetRA + formatHours(t.RA))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected target right ascension", "ra", t.RA)
		return Failed, nil
	}
	ok, err = m.codec.sendBool(cmdTargetDec + formatSignedDegrees(t.Dec))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected target declination", "dec", t.Dec)
		return Failed, nil
	}
	reply, err := m.codec.sendFixed(cmdSlewEq, 1)
	if err != nil {
		return Failed, err
	}
	if reply[0] != '0' {
		m.log.Errorw("handset rejected slew", "code", string(reply))
		return Failed, nil
	}
	return Succeeded, nil
}

// slewHorizontal points the axes directly and leaves the handset in land
// mode, so nothing tracks afterwards. With the axes aligned to the pole the
// handset's altitude channel carries declination and its azimuth channel
// carries the hour angle rotated by half a turn.
func (m *Mount) slewHorizontal(t Target) (CommandStatus, error) {
	if err := m.setTracking(false); err != nil {
		return Failed, err
	}
	ok, err := m.codec.sendBool(cmdTargetAlt + formatSignedDegrees(t.Dec))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected target declination axis", "dec", t.Dec)
		return Failed, nil
	}
	axis := astrometry.Wrap360(180 + t.HA)
	ok, err = m.codec.sendBool(cmdTargetAz + formatDegrees(axis))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected target hour angle axis", "ha", t.HA)
		return Failed, nil
	}
	reply, err := m.codec.sendFixed(cmdSlewAltAz, 1)
	if err != nil {
		return Failed, err
	}
	if reply[0] != '0' {
		m.log.Errorw("handset rejected slew", "code", string(reply))
		return Failed, nil
	}
	return Succeeded, nil
}

// sync tells the handset its current pointing equals the target. The
// handset acknowledges with a fixed catalog string.
func (m *Mount) sync(t Target) (CommandStatus, error) {
	ok, err := m.codec.sendBool(cmdTargetRA + formatHours(t.RA))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected sync right ascension", "ra", t.RA)
		return Failed, nil
	}
	ok, err = m.codec.sendBool(cmdTargetDec + formatSignedDegrees(t.Dec))
	if err != nil {
		return Failed, err
	}
	if !ok {
		m.log.Errorw("handset rejected sync declination", "dec", t.Dec)
		return Failed, nil
	}
	reply, err := m.codec.sendString(cmdSync)
	if err != nil {
		return Failed, err
	}
	if strings.TrimSpace(reply) != syncResponse {
		m.log.Errorw("unexpected sync acknowledgement", "reply", reply)
		return Failed, nil
	}
	// Accepting a sync puts the handset in polar mode, tracking.
	m.tracking = true
	return Succeeded, nil
}

// zero resets the pointing model to hour angle zero on the meridian and
// saves it as the park position. Syncing puts the handset in polar mode, so
// tracking is switched back off once the model settles.
func (m *Mount) zero(ctx context.Context) (CommandStatus, error) {
	lstStr, err := m.codec.sendString(cmdSiderealTime)
	if err != nil {
		return Failed, err
	}
	lst, err := parseHours(lstStr)
	if err != nil {
		return Failed, errors.Wrap(err, "parsing sidereal time")
	}
	status, err := m.sync(Target{RA: lst, Dec: 0})
	if err != nil || status != Succeeded {
		return status, err
	}
	if err := m.sleep(ctx, m.settleDelay); err != nil {
		return Failed, nil
	}
	if err := m.setTracking(false); err != nil {
		return Failed, err
	}
	if err := m.codec.sendNone(cmdSavePark); err != nil {
		return Failed, err
	}
	return Succeeded, nil
}

// offset nudges the pointing with timed guide pulses, one per axis. The
// axes pulse concurrently, so the worker only waits out the longer one.
func (m *Mount) offset(ctx context.Context, dra, ddec float64) (CommandStatus, error) {
	if math.Abs(dra) > pulseLimit || math.Abs(ddec) > pulseLimit {
		m.log.Errorw("offset too large for guide pulses", "dra", dra, "ddec", ddec)
		return Failed, nil
	}
	if err := m.codec.sendNone(cmdGuideRate); err != nil {
		return Failed, err
	}
	pulse := func(delta float64, pos, neg string) (time.Duration, error) {
		ms := int(math.Round(math.Abs(delta) * pulseMsPerDegree))
		if ms == 0 {
			return 0, nil
		}
		dir := pos
		if delta < 0 {
			dir = neg
		}
		if err := m.codec.sendNone(fmt.Sprintf("%s%s%04d", cmdGuidePulse, dir, ms)); err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	raWait, err := pulse(dra, "e", "w")
	if err != nil {
		return Failed, err
	}
	decWait, err := pulse(ddec, "n", "s")
	if err != nil {
		return Failed, err
	}
	wait := raWait
	if decWait > wait {
		wait = decWait
	}
	if err := m.sleep(ctx, wait); err != nil {
		return Failed, nil
	}
	return Succeeded, nil
}

// stop halts motion and latches the force-stop flag so in-flight pointing
// waits fail instead of reporting success.
func (m *Mount) stop() (CommandStatus, error) {
	m.notifyDome("stop", func(d dome.Dome) error { return d.NotifyStopped() })
	m.store.SetForceStop(true)
	if err := m.codec.sendNone(cmdHaltSlew); err != nil {
		return Failed, err
	}
	if err := m.setTracking(false); err != nil {
		return Failed, err
	}
	return Succeeded, nil
}

// initialize opens the serial link and runs the handset power-on sequence.
// Any failure tears the link back down and returns the mount to Disabled.
func (m *Mount) initialize(ctx context.Context) CommandStatus {
	if m.codec != nil {
		return NotDisconnected
	}
	m.store.SetState(Initializing)
	status := m.handshake(ctx)
	if status != Succeeded {
		m.dropLink()
		m.store.SetState(Disabled)
	}
	return status
}

func (m *Mount) handshake(ctx context.Context) CommandStatus {
	port, err := m.opts.Open()
	if err != nil {
		m.log.Errorw("opening serial port failed", "device", m.opts.Device, "error", err)
		return Failed
	}
	m.codec = newCodec(port)
	deadline := time.Now().Add(m.opts.InitializeTimeout)

	// Reboot the handset; it stays silent until its power-on test passes.
	if err := m.codec.sendNone(cmdReboot); err != nil {
		m.log.Errorw("rebooting handset failed", "error", err)
		return Failed
	}
	for {
		if time.Now().After(deadline) {
			m.log.Error("timed out waiting for handset to boot")
			return Failed
		}
		mode, err := m.codec.probeAlignment()
		if err == nil {
			if mode != alignLand && mode != alignPolar {
				m.log.Errorw("handset is in an unsupported alignment mode", "mode", string(mode))
				return InvalidMountConfiguration
			}
			break
		}
		if !errors.Is(err, errShortRead) {
			m.log.Errorw("alignment probe failed", "error", err)
			return Failed
		}
		if err := m.sleep(ctx, m.ackInterval); err != nil {
			return Failed
		}
	}

	if status := m.awaitDisplayClear(ctx, deadline, displayDriveHoming); status != Succeeded {
		return status
	}
	ok, err := m.codec.sendBool(cmdSetTime + time.Now().UTC().Format(timestampLayout))
	if err != nil || !ok {
		m.log.Errorw("setting handset clock failed", "error", err)
		return Failed
	}
	if status := m.awaitDisplayClear(ctx, deadline, displayFindingHome); status != Succeeded {
		return status
	}
	if status := m.validateSite(); status != Succeeded {
		return status
	}
	if err := m.setTracking(false); err != nil {
		m.log.Errorw("disabling tracking failed", "error", err)
		return Failed
	}
	if err := m.refresh(); err != nil {
		m.log.Errorw("reading initial handset state failed", "error", err)
		return Failed
	}
	return Succeeded
}

// awaitDisplayClear polls the handset display until message no longer
// shows. A short read means the handset is too busy to answer and counts as
// still showing.
func (m *Mount) awaitDisplayClear(ctx context.Context, deadline time.Time, message string) CommandStatus {
	for {
		if time.Now().After(deadline) {
			m.log.Errorw("timed out waiting for handset", "display", message)
			return Failed
		}
		text, err := m.codec.sendString(cmdDisplay)
		if err == nil && !strings.Contains(text, message) {
			return Succeeded
		}
		if err != nil && !errors.Is(err, errShortRead) {
			m.log.Errorw("reading handset display failed", "error", err)
			return Failed
		}
		if err := m.sleep(ctx, m.displayPoll); err != nil {
			return Failed
		}
	}
}

// validateSite rejects a handset whose stored site or clock disagrees with
// the daemon's configuration, before any slew can run with them. The
// handset stores longitude west-positive, so it is negated here.
func (m *Mount) validateSite() CommandStatus {
	latStr, err := m.codec.sendString(cmdLatitude)
	if err != nil {
		m.log.Errorw("reading handset latitude failed", "error", err)
		return Failed
	}
	lat, err := parseSexagesimal(latStr)
	if err != nil {
		m.log.Errorw("parsing handset latitude failed", "error", err)
		return Failed
	}
	lonStr, err := m.codec.sendString(cmdLongitude)
	if err != nil {
		m.log.Errorw("reading handset longitude failed", "error", err)
		return Failed
	}
	lonWest, err := parseSexagesimal(lonStr)
	if err != nil {
		m.log.Errorw("parsing handset longitude failed", "error", err)
		return Failed
	}
	lon := -lonWest
	lstStr, err := m.codec.sendString(cmdSiderealTime)
	if err != nil {
		m.log.Errorw("reading handset sidereal time failed", "error", err)
		return Failed
	}
	lst, err := parseHours(lstStr)
	if err != nil {
		m.log.Errorw("parsing handset sidereal time failed", "error", err)
		return Failed
	}
	want := astrometry.ApparentSiderealTime(time.Now().UTC(), m.opts.Site)
	if math.Abs(lat-m.opts.Site.Latitude) > siteLatitudeTolerance ||
		math.Abs(lon-m.opts.Site.Longitude) > siteLongitudeTolerance ||
		math.Abs(astrometry.WrapHourAngle(lst-want)) > siteLSTTolerance {
		m.log.Errorw("handset site disagrees with configuration",
			"handset_latitude", lat, "handset_longitude", lon,
			"handset_lst", lst, "expected_lst", want)
		return InvalidMountConfiguration
	}
	return Succeeded
}

// shutdown slews to the saved park position and drops the link. The park
// slew is fire-and-forget: the handset finishes it on its own.
func (m *Mount) shutdown() CommandStatus {
	if m.codec == nil {
		return NotConnected
	}
	m.notifyDome("park", func(d dome.Dome) error { return d.NotifyParked() })
	err := m.codec.sendNone(cmdParkSlew)
	m.dropLink()
	m.store.SetState(Disabled)
	if err != nil {
		m.log.Errorw("park command failed", "error", err)
		return Failed
	}
	return Succeeded
}

func (m *Mount) dropLink() {
	if m.codec == nil {
		return
	}
	if err := m.codec.port.Close(); err != nil {
		m.log.Warnw("closing serial port failed", "error", err)
	}
	m.codec = nil
}

// lostLink closes the port and disables the mount after an unrecoverable
// link error. The worker keeps running; a new Initialize restores service.
func (m *Mount) lostLink(err error) {
	m.log.Errorw("lost link to mount", "error", err)
	m.dropLink()
	m.store.SetState(Disabled)
}

func (m *Mount) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Mount) notifyDome(event string, fn func(dome.Dome) error) {
	if err := fn(m.dome); err != nil {
		m.log.Warnw("dome notification failed", "event", event, "error", err)
	}
}
