// Package server exposes the mount worker as an observatory control API,
// enforcing access control, command exclusivity and pointing limits.
package server

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-observatory/mountd/astrometry"
	"github.com/kestrel-observatory/mountd/internal/logger"
	"github.com/kestrel-observatory/mountd/meade"
)

// offsetBoundary splits offsets between guide pulses and a full slew. At one
// arcminute and above the pulse durations get long enough that re-slewing is
// both faster and more accurate.
const offsetBoundary = 1.0 / 60

// Park is a named stow pointing.
type Park struct {
	Desc string  `json:"desc"`
	Alt  float64 `json:"alt"`
	Az   float64 `json:"az"`
}

// Config wires a Server.
type Config struct {
	Site   astrometry.Site
	Limits Limits
	Parks  map[string]Park

	// ControlIPs lists the addresses allowed to issue control commands.
	// Empty means any address. Status queries are never restricted.
	ControlIPs []string

	// SlewTimeout bounds how long a pointing command blocks; SlewPoll is
	// the re-check interval while waiting.
	SlewTimeout time.Duration
	SlewPoll    time.Duration

	Logger *zap.SugaredLogger
}

// Server serializes control commands onto the mount worker. One control
// command runs at a time; a second caller is turned away with Blocked
// rather than queued, so clients never pile up behind a long slew.
type Server struct {
	log         *zap.SugaredLogger
	mount       *meade.Mount
	site        astrometry.Site
	limits      Limits
	parks       map[string]Park
	controlIPs  map[string]bool
	slewTimeout time.Duration
	slewPoll    time.Duration

	commandMu sync.Mutex
}

func New(mount *meade.Mount, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.SlewTimeout <= 0 {
		cfg.SlewTimeout = 120 * time.Second
	}
	if cfg.SlewPoll <= 0 {
		cfg.SlewPoll = time.Second
	}
	controlIPs := make(map[string]bool, len(cfg.ControlIPs))
	for _, ip := range cfg.ControlIPs {
		controlIPs[ip] = true
	}
	return &Server{
		log:         cfg.Logger,
		mount:       mount,
		site:        cfg.Site,
		limits:      cfg.Limits,
		parks:       cfg.Parks,
		controlIPs:  controlIPs,
		slewTimeout: cfg.SlewTimeout,
		slewPoll:    cfg.SlewPoll,
	}
}

func (s *Server) allowed(remoteIP string) bool {
	return len(s.controlIPs) == 0 || s.controlIPs[remoteIP]
}

// runExclusive admits one control command at a time. A busy server answers
// Blocked immediately instead of queueing the caller.
func (s *Server) runExclusive(remoteIP string, fn func() meade.CommandStatus) meade.CommandStatus {
	if !s.allowed(remoteIP) {
		return meade.InvalidControlIP
	}
	if !s.commandMu.TryLock() {
		return meade.Blocked
	}
	defer s.commandMu.Unlock()
	return fn()
}

func (s *Server) connected() bool {
	switch s.mount.State() {
	case meade.Disabled, meade.Initializing:
		return false
	}
	return true
}

// Initialize connects the serial link and runs the handset power-on
// sequence.
func (s *Server) Initialize(ctx context.Context, remoteIP string) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		return s.mount.Do(ctx, meade.InitializeCommand{})
	})
}

// Shutdown slews the mount to its saved park position and drops the link.
func (s *Server) Shutdown(ctx context.Context, remoteIP string) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		return s.mount.Do(ctx, meade.ShutdownCommand{})
	})
}

// Stop halts motion immediately. It skips the exclusivity check so it can
// interrupt a pointing command in flight; the force-stop flag is rearmed
// only once the interrupted command has released the lock.
func (s *Server) Stop(ctx context.Context, remoteIP string) meade.CommandStatus {
	if !s.allowed(remoteIP) {
		return meade.InvalidControlIP
	}
	status := s.mount.Do(ctx, meade.StopCommand{})
	s.commandMu.Lock()
	s.mount.ClearForceStop()
	s.commandMu.Unlock()
	return status
}

// SlewRADec moves to J2000 coordinates and stops.
func (s *Server) SlewRADec(ctx context.Context, remoteIP string, ra, dec float64) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		target := meade.TargetFromRADec(time.Now().UTC(), s.site, ra, dec)
		if status := s.limits.CheckTarget(target); status != meade.Succeeded {
			return status
		}
		return s.pointing(ctx, meade.SlewCommand{Target: target})
	})
}

// TrackRADec moves to J2000 coordinates and sidereal-tracks them.
func (s *Server) TrackRADec(ctx context.Context, remoteIP string, ra, dec float64) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		target := meade.TargetFromRADec(time.Now().UTC(), s.site, ra, dec)
		if status := s.limits.CheckTarget(target); status != meade.Succeeded {
			return status
		}
		return s.pointing(ctx, meade.TrackCommand{Target: target})
	})
}

// SlewAltAz moves to a fixed horizontal pointing and stops.
func (s *Server) SlewAltAz(ctx context.Context, remoteIP string, alt, az float64) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		target := meade.TargetFromAltAz(time.Now().UTC(), s.site, alt, az)
		if status := s.limits.CheckTarget(target); status != meade.Succeeded {
			return status
		}
		return s.pointing(ctx, meade.SlewAltAzCommand{Target: target})
	})
}

// OffsetRADec shifts the current pointing by the given deltas. Small
// offsets use guide pulses; larger ones re-slew to the shifted coordinates,
// tracking afterwards only if the mount was tracking before.
func (s *Server) OffsetRADec(ctx context.Context, remoteIP string, dra, ddec float64) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		if math.Abs(dra) >= offsetBoundary || math.Abs(ddec) >= offsetBoundary {
			return s.offsetBySlew(ctx, dra, ddec)
		}
		if dra == 0 && ddec == 0 {
			return meade.Succeeded
		}
		return s.mount.Do(ctx, meade.OffsetCommand{DRA: dra, DDec: ddec})
	})
}

func (s *Server) offsetBySlew(ctx context.Context, dra, ddec float64) meade.CommandStatus {
	state, snap := s.mount.Snapshot()
	if snap == nil {
		return meade.NotConnected
	}
	ra := astrometry.Wrap360(snap.RA + dra)
	dec := snap.Dec + ddec
	target := meade.TargetFromRADec(time.Now().UTC(), s.site, ra, dec)
	if status := s.limits.CheckTarget(target); status != meade.Succeeded {
		return status
	}
	var cmd meade.Command = meade.SlewCommand{Target: target}
	if state == meade.Tracking {
		cmd = meade.TrackCommand{Target: target}
	}
	return s.pointing(ctx, cmd)
}

// SyncRADec tells the mount its current pointing equals the given J2000
// coordinates.
func (s *Server) SyncRADec(ctx context.Context, remoteIP string, ra, dec float64) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		target := meade.TargetFromRADec(time.Now().UTC(), s.site, ra, dec)
		if status := s.limits.CheckTarget(target); status != meade.Succeeded {
			return status
		}
		return s.mount.Do(ctx, meade.SyncCommand{Target: target})
	})
}

// Zero resets the pointing model to hour angle zero on the meridian.
func (s *Server) Zero(ctx context.Context, remoteIP string) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		return s.mount.Do(ctx, meade.ZeroCommand{})
	})
}

// Park slews to a named park position. Park pointings are exempt from the
// soft limits so a stow below the science horizon stays reachable.
func (s *Server) Park(ctx context.Context, remoteIP, name string) meade.CommandStatus {
	return s.runExclusive(remoteIP, func() meade.CommandStatus {
		if !s.connected() {
			return meade.NotConnected
		}
		park, ok := s.parks[name]
		if !ok {
			return meade.UnknownParkPosition
		}
		target := meade.TargetFromAltAz(time.Now().UTC(), s.site, park.Alt, park.Az)
		return s.pointing(ctx, meade.ParkCommand{Target: target})
	})
}

// Status returns the current mount status payload. It never blocks on the
// worker.
func (s *Server) Status() interface{} {
	return s.mount.Status()
}

// Updates exposes the store's change broadcast for status streaming.
func (s *Server) Updates() <-chan struct{} {
	return s.mount.Updates()
}

// Parks lists the configured park positions.
func (s *Server) Parks() map[string]Park {
	parks := make(map[string]Park, len(s.parks))
	for name, park := range s.parks {
		parks[name] = park
	}
	return parks
}

// Ping confirms the daemon is alive.
func (s *Server) Ping() meade.CommandStatus {
	return meade.Succeeded
}

// pointing issues a motion command and blocks until the mount settles, a
// stop interrupts it, or the slew timeout passes. The completion channel is
// fetched before each condition check so a broadcast between check and wait
// cannot be missed.
func (s *Server) pointing(ctx context.Context, cmd meade.Command) meade.CommandStatus {
	if status := s.mount.Do(ctx, cmd); status != meade.Succeeded {
		return status
	}
	deadline := time.Now().Add(s.slewTimeout)
	for {
		completion := s.mount.Completion()
		if s.mount.ForceStopped() {
			return meade.Failed
		}
		state, snap := s.mount.Snapshot()
		if snap == nil {
			s.log.Error("lost mount state while waiting for a slew")
			return meade.Failed
		}
		if state != meade.Slewing {
			return meade.Succeeded
		}
		if time.Now().After(deadline) {
			s.log.Warnw("slew still in progress at timeout", "timeout", s.slewTimeout)
			return meade.Succeeded
		}
		timer := time.NewTimer(s.slewPoll)
		select {
		case <-completion:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return meade.Failed
		}
		timer.Stop()
	}
}
