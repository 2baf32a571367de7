package dome

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// Register map of the dome controller PLC.
const (
	regMode   = 0 // modeStopped..modeParked
	regCoordA = 1 // RA or azimuth, decidegrees
	regCoordB = 2 // Dec or altitude, decidegrees, two's complement

	coilTracking = 0
)

const (
	modeStopped uint16 = iota
	modeEquatorial
	modeHorizontal
	modeParked
)

type clientHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Modbus drives a dome controller PLC through the register map above. The
// link is dialed lazily: a failed transaction closes it and the next
// notification redials.
type Modbus struct {
	addr    string
	handler clientHandler

	mu        sync.Mutex
	client    modbus.Client
	connected bool
}

// Connect prepares a dome controller on a local serial port. The port is
// not opened until the first notification.
func Connect(port string, baud int, slaveID byte) *Modbus {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = time.Second
	handler.SlaveId = slaveID
	return newModbus(port, handler)
}

// ConnectRemote prepares a dome controller reached through a bridge that
// relays Modbus frames over HTTP.
func ConnectRemote(url string, slaveID byte) *Modbus {
	return newModbus(url, newRemoteTransport(url, slaveID))
}

func newModbus(addr string, handler clientHandler) *Modbus {
	return &Modbus{addr: addr, handler: handler, client: modbus.NewClient(handler)}
}

func (d *Modbus) NotifyRADec(ra, dec float64, tracking bool) error {
	return d.writeTarget(modeEquatorial, ra, dec, tracking)
}

func (d *Modbus) NotifyAltAz(alt, az float64) error {
	return d.writeTarget(modeHorizontal, az, alt, false)
}

func (d *Modbus) NotifyParked() error { return d.writeMode(modeParked) }

func (d *Modbus) NotifyStopped() error { return d.writeMode(modeStopped) }

func (d *Modbus) writeTarget(mode uint16, a, b float64, tracking bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensure(); err != nil {
		return err
	}
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:], mode)
	binary.BigEndian.PutUint16(buf[2:], decidegrees(a))
	binary.BigEndian.PutUint16(buf[4:], decidegrees(b))
	if _, err := d.client.WriteMultipleRegisters(regMode, 3, buf); err != nil {
		return d.fail(errors.Wrap(err, "writing dome target"))
	}
	var coil uint16
	if tracking {
		coil = 0xFF00
	}
	if _, err := d.client.WriteSingleCoil(coilTracking, coil); err != nil {
		return d.fail(errors.Wrap(err, "writing dome tracking flag"))
	}
	return nil
}

func (d *Modbus) writeMode(mode uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensure(); err != nil {
		return err
	}
	if _, err := d.client.WriteSingleRegister(regMode, mode); err != nil {
		return d.fail(errors.Wrap(err, "writing dome mode"))
	}
	return nil
}

func (d *Modbus) ensure() error {
	if d.connected {
		return nil
	}
	if err := d.handler.Connect(); err != nil {
		return errors.Wrapf(err, "opening %q", d.addr)
	}
	d.connected = true
	return nil
}

func (d *Modbus) fail(err error) error {
	d.handler.Close()
	d.connected = false
	return err
}

// decidegrees encodes an angle as tenths of a degree in one 16-bit
// register, two's complement for angles south of the equator.
func decidegrees(deg float64) uint16 {
	return uint16(int16(math.Round(deg * 10)))
}
