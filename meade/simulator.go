package meade

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kestrel-observatory/mountd/astrometry"
)

// SimulatorConfig shapes the simulated handset. Zero delays make the boot
// and slews instantaneous.
type SimulatorConfig struct {
	Site astrometry.Site

	// AlignmentMode is the byte answered to an alignment probe. Zero means
	// polar.
	AlignmentMode byte

	// BootDelay is how long the handset ignores probes after power-on,
	// HomingDelay how long each homing message stays on the display, and
	// SlewDelay how long a commanded slew takes.
	BootDelay   time.Duration
	HomingDelay time.Duration
	SlewDelay   time.Duration

	// ReadTimeout is the per-read deadline of ports returned by Open. Zero
	// means one second.
	ReadTimeout time.Duration
}

// Simulator is an in-memory handset for tests and the -simulate mode of the
// daemon. Open hands out one serial session at a time over an in-process
// pipe; handset state survives across sessions the way a powered handset
// survives an unplugged cable.
type Simulator struct {
	cfg SimulatorConfig

	mu           sync.Mutex
	ra           float64
	dec          float64
	targetRA     float64
	targetDec    float64
	targetAxis   float64
	slewUntil    time.Time
	bootAt       time.Time
	display      string
	displayUntil time.Time
	tracking     bool
	parked       bool
	frames       []string
	conn         net.Conn
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.AlignmentMode == 0 {
		cfg.AlignmentMode = alignPolar
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	s := &Simulator{cfg: cfg}
	now := time.Now().UTC()
	s.ra = s.lstAt(now)
	s.dec = 0
	return s
}

// Open starts a fresh serial session and reboots the handset, like cycling
// its power. The returned Port honors SimulatorConfig.ReadTimeout.
func (s *Simulator) Open() (Port, error) {
	device, handset := net.Pipe()
	s.mu.Lock()
	now := time.Now()
	s.bootAt = now.Add(s.cfg.BootDelay)
	s.display = displayDriveHoming
	s.displayUntil = s.bootAt.Add(s.cfg.HomingDelay)
	s.conn = device
	s.mu.Unlock()
	go s.serve(handset)
	return &pipePort{conn: device, timeout: s.cfg.ReadTimeout}, nil
}

// DropLink severs the current session abruptly, as if the cable were
// pulled.
func (s *Simulator) DropLink() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Frames returns every command body received so far, across sessions.
func (s *Simulator) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *Simulator) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

func (s *Simulator) Parked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parked
}

// Pose returns the current of-date pointing in degrees.
func (s *Simulator) Pose() (ra, dec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose(time.Now().UTC())
}

func (s *Simulator) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case ack:
			s.handleProbe(conn)
		case ':':
			body, err := r.ReadString(terminator)
			if err != nil {
				return
			}
			s.handleCommand(conn, strings.TrimSuffix(body, string(terminator)))
		}
	}
}

func (s *Simulator) handleProbe(w io.Writer) {
	s.mu.Lock()
	booted := time.Now().After(s.bootAt)
	mode := s.cfg.AlignmentMode
	s.mu.Unlock()
	if booted {
		w.Write([]byte{mode})
	}
}

// handleCommand mutates handset state under the lock and replies after
// releasing it, since a pipe write only completes once the daemon reads it.
func (s *Simulator) handleCommand(w io.Writer, body string) {
	now := time.Now().UTC()

	s.mu.Lock()
	s.frames = append(s.frames, body)

	var reply string
	switch {
	case body == cmdReboot:
		s.bootAt = time.Now().Add(s.cfg.BootDelay)
		s.display = displayDriveHoming
		s.displayUntil = s.bootAt.Add(s.cfg.HomingDelay)
	case body == cmdDisplay:
		reply = s.displayText(now) + string(terminator)
	case strings.HasPrefix(body, cmdSetTime):
		if _, err := time.Parse(timestampLayout, body[len(cmdSetTime):]); err != nil {
			reply = "0"
			break
		}
		s.display = displayFindingHome
		s.displayUntil = time.Now().Add(s.cfg.HomingDelay)
		reply = "1"
	case body == cmdLatitude:
		reply = formatSignedDegrees(s.cfg.Site.Latitude) + string(terminator)
	case body == cmdLongitude:
		// The handset stores longitude west-positive.
		reply = formatSignedDegrees(-s.cfg.Site.Longitude) + string(terminator)
	case body == cmdSiderealTime:
		reply = formatHours(s.lstAt(now)) + string(terminator)
	case body == cmdRA:
		ra, _ := s.pose(now)
		reply = formatHours(ra) + string(terminator)
	case body == cmdDec:
		_, dec := s.pose(now)
		reply = formatSignedDegrees(dec) + string(terminator)
	case body == cmdAltitude:
		_, alt := s.horizontal(now)
		reply = formatSignedDegrees(alt) + string(terminator)
	case body == cmdAzimuth:
		az, _ := s.horizontal(now)
		reply = formatDegrees(az) + string(terminator)
	case body == cmdDistance:
		s.pose(now)
		if s.slewUntil.IsZero() {
			reply = string(terminator)
		} else {
			reply = "\x7f" + string(terminator)
		}
	case strings.HasPrefix(body, cmdTargetRA):
		reply = s.setTarget(&s.targetRA, parseHours, body[len(cmdTargetRA):])
	case strings.HasPrefix(body, cmdTargetDec):
		reply = s.setTarget(&s.targetDec, parseSexagesimal, body[len(cmdTargetDec):])
	case strings.HasPrefix(body, cmdTargetAlt):
		reply = s.setTarget(&s.targetDec, parseSexagesimal, body[len(cmdTargetAlt):])
	case strings.HasPrefix(body, cmdTargetAz):
		reply = s.setTarget(&s.targetAxis, parseSexagesimal, body[len(cmdTargetAz):])
	case body == cmdSlewEq:
		s.slewUntil = now.Add(s.cfg.SlewDelay)
		s.parked = false
		reply = "0"
	case body == cmdSlewAltAz:
		// The azimuth channel carries the hour angle axis rotated by half a
		// turn.
		s.targetRA = astrometry.Wrap360(s.lstAt(now) - s.targetAxis + 180)
		s.slewUntil = now.Add(s.cfg.SlewDelay)
		s.parked = false
		reply = "0"
	case body == cmdSync:
		s.ra, s.dec = s.targetRA, s.targetDec
		s.slewUntil = time.Time{}
		s.tracking = true
		reply = syncResponse + string(terminator)
	case body == cmdPolarMode:
		s.tracking = true
	case body == cmdLandMode:
		s.tracking = false
	case body == cmdHaltSlew:
		if !s.slewUntil.IsZero() {
			s.ra, s.dec = s.targetRA, s.targetDec
			s.slewUntil = time.Time{}
		}
	case body == cmdGuideRate:
	case strings.HasPrefix(body, cmdGuidePulse):
		s.pulse(body[len(cmdGuidePulse):])
	case body == cmdParkSlew:
		s.parked = true
	case body == cmdSavePark:
	}
	s.mu.Unlock()

	if reply != "" {
		io.WriteString(w, reply)
	}
}

func (s *Simulator) setTarget(dst *float64, parse func(string) (float64, error), arg string) string {
	v, err := parse(arg)
	if err != nil {
		return "0"
	}
	*dst = v
	return "1"
}

func (s *Simulator) displayText(now time.Time) string {
	if now.Before(s.displayUntil) {
		return s.display
	}
	return "Select Item: Object"
}

// pose returns the of-date pointing, committing a finished slew first.
// While a slew is still running it reports the target, which is all the
// daemon needs since it derives motion from the distance probe.
func (s *Simulator) pose(now time.Time) (float64, float64) {
	if !s.slewUntil.IsZero() {
		if now.After(s.slewUntil) {
			s.ra, s.dec = s.targetRA, s.targetDec
			s.slewUntil = time.Time{}
		}
		return s.targetRA, s.targetDec
	}
	return s.ra, s.dec
}

func (s *Simulator) horizontal(now time.Time) (az, alt float64) {
	ra, dec := s.pose(now)
	ha := astrometry.WrapHourAngle(s.lstAt(now) - ra)
	return astrometry.EquatorialToHorizontal(ha, dec, s.cfg.Site.Latitude)
}

func (s *Simulator) lstAt(now time.Time) float64 {
	return astrometry.ApparentSiderealTime(now, s.cfg.Site)
}

func (s *Simulator) pulse(arg string) {
	if arg == "" {
		return
	}
	ms, err := strconv.Atoi(arg[1:])
	if err != nil {
		return
	}
	delta := float64(ms) / pulseMsPerDegree
	switch arg[0] {
	case 'e':
		s.ra = astrometry.Wrap360(s.ra + delta)
	case 'w':
		s.ra = astrometry.Wrap360(s.ra - delta)
	case 'n':
		s.dec += delta
	case 's':
		s.dec -= delta
	}
}

// pipePort adapts one end of a net.Pipe to the Port interface, applying a
// fresh read deadline per call the way a serial port timeout behaves.
type pipePort struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *pipePort) Read(buf []byte) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return 0, err
	}
	return p.conn.Read(buf)
}

func (p *pipePort) Write(buf []byte) (int, error) { return p.conn.Write(buf) }

func (p *pipePort) Close() error { return p.conn.Close() }

func (p *pipePort) Flush() error { return nil }
