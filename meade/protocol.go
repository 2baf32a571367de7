package meade

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Port is the byte-level link to the handset. Flush discards buffered input
// and output, matching tarm/serial.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// OpenPort opens the configured serial device with a per-read timeout.
func OpenPort(device string, baud int, readTimeout time.Duration) (Port, error) {
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", device)
	}
	return p, nil
}

const (
	// ack probes the handset's alignment mode; it is the only unframed
	// command the protocol has.
	ack        byte = 0x06
	nak        byte = 0x15
	terminator byte = '#'

	alignAltAz byte = 'A'
	alignLand  byte = 'L'
	alignPolar byte = 'P'
)

// Handset command bodies, framed as ":body#" on the wire.
const (
	cmdReboot       = "I"
	cmdDisplay      = "ED"
	cmdSetTime      = "hI"
	cmdSiderealTime = "GS"
	cmdLatitude     = "Gt"
	cmdLongitude    = "Gg"
	cmdRA           = "GR"
	cmdDec          = "GD"
	cmdAltitude     = "GA"
	cmdAzimuth      = "GZ"
	cmdDistance     = "D"
	cmdTargetRA     = "Sr"
	cmdTargetDec    = "Sd"
	cmdTargetAlt    = "Sa"
	cmdTargetAz     = "Sz"
	cmdSlewEq       = "MS"
	cmdSlewAltAz    = "MA"
	cmdHaltSlew     = "Q"
	cmdPolarMode    = "AP"
	cmdLandMode     = "AL"
	cmdSync         = "CM"
	cmdGuideRate    = "RG"
	cmdGuidePulse   = "Mg"
	cmdParkSlew     = "hP"
	cmdSavePark     = "hS"
)

// timestampLayout is the "YYMMDDHHMMSS" clock format the hI command takes.
const timestampLayout = "060102150405"

// Display messages the initialization sequence waits on, and the fixed
// acknowledgement the sync command answers with.
const (
	displayDriveHoming = "Homing Drives"
	displayFindingHome = "Finding Home"
	syncResponse       = "M31 EX GAL MAG 3.5 SZ178.0'"
)

// errShortRead reports that the handset stopped answering mid-exchange. The
// worker surfaces it as a failed command without tearing the link down.
var errShortRead = errors.New("short read from mount")

// maxResponse bounds '#'-terminated reads so a babbling handset cannot wedge
// the worker.
const maxResponse = 512

const busyRetryDelay = time.Second

// codec speaks the handset line protocol over a Port. Commands are framed
// as ":body#"; responses are raw bytes, a '0'/'1' boolean, or a
// '#'-terminated string. A NAK byte means the handset was busy, in which
// case the codec waits and resends the identical frame.
type codec struct {
	port       Port
	retryDelay time.Duration
}

func newCodec(port Port) *codec {
	return &codec{port: port, retryDelay: busyRetryDelay}
}

func frame(body string) []byte {
	return []byte(":" + body + "#")
}

// send flushes stale input and writes one frame.
func (c *codec) send(frame []byte) error {
	if err := c.port.Flush(); err != nil {
		return errors.Wrap(err, "flushing port")
	}
	n, err := c.port.Write(frame)
	if err != nil {
		return errors.Wrapf(err, "writing %q", frame)
	}
	if n != len(frame) {
		return errors.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// readByte reads a single byte, honoring the port's per-read timeout.
func (c *codec) readByte() (byte, error) {
	var buf [1]byte
	n, err := c.port.Read(buf[:])
	if err != nil {
		if err == io.EOF || isTimeout(err) {
			return 0, errShortRead
		}
		return 0, err
	}
	if n == 0 {
		return 0, errShortRead
	}
	return buf[0], nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// sendNone issues a command that produces no response.
func (c *codec) sendNone(body string) error {
	return c.send(frame(body))
}

// sendBool issues a command answered by a single '0' or '1' byte.
func (c *codec) sendBool(body string) (bool, error) {
	f := frame(body)
	if err := c.send(f); err != nil {
		return false, err
	}
	for {
		b, err := c.readByte()
		if err != nil {
			return false, errors.Wrapf(err, "reading %q response", body)
		}
		if b == nak {
			time.Sleep(c.retryDelay)
			if err := c.send(f); err != nil {
				return false, err
			}
			continue
		}
		return b == '1', nil
	}
}

// sendFixed issues a command answered by exactly n raw bytes.
func (c *codec) sendFixed(body string, n int) ([]byte, error) {
	if err := c.send(frame(body)); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, n)
	for len(buf) < n {
		b, err := c.readByte()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q response", body)
		}
		buf = append(buf, b)
	}
	return buf, nil
}

// sendString issues a command answered by a '#'-terminated string and
// returns the bytes before the terminator. A NAK is a busy-retry only while
// the buffer is still empty; once payload bytes have arrived it is data.
func (c *codec) sendString(body string) (string, error) {
	f := frame(body)
	if err := c.send(f); err != nil {
		return "", err
	}
	var buf []byte
	for {
		b, err := c.readByte()
		if err != nil {
			return "", errors.Wrapf(err, "reading %q response", body)
		}
		switch {
		case b == nak && len(buf) == 0:
			time.Sleep(c.retryDelay)
			if err := c.send(f); err != nil {
				return "", err
			}
		case b == terminator:
			return string(buf), nil
		default:
			buf = append(buf, b)
			if len(buf) > maxResponse {
				return "", errors.Errorf("response to %q exceeded %d bytes", body, maxResponse)
			}
		}
	}
}

// probeAlignment writes the raw ACK byte and returns the one-byte alignment
// mode reply.
func (c *codec) probeAlignment() (byte, error) {
	if err := c.send([]byte{ack}); err != nil {
		return 0, err
	}
	return c.readByte()
}
