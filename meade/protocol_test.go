package meade

import (
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// fakePort replays a canned byte stream one byte per read and records
// writes. An exhausted stream reads like a serial timeout.
type fakePort struct {
	reads   []byte
	writes  [][]byte
	flushes int
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, io.EOF
	}
	buf[0] = p.reads[0]
	p.reads = p.reads[1:]
	return 1, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), buf...))
	return len(buf), nil
}

func (p *fakePort) Close() error { return nil }

func (p *fakePort) Flush() error {
	p.flushes++
	return nil
}

func newFakeCodec(reads ...byte) (*codec, *fakePort) {
	port := &fakePort{reads: reads}
	return &codec{port: port, retryDelay: time.Millisecond}, port
}

func TestSendBool(t *testing.T) {
	c, port := newFakeCodec('1')
	got, err := c.sendBool("Sr10:30:00")
	if err != nil {
		t.Fatalf("sendBool failed: %v", err)
	}
	if !got {
		t.Error("sendBool = false, want true")
	}
	want := [][]byte{[]byte(":Sr10:30:00#")}
	if diff := cmp.Diff(port.writes, want); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
}

func TestSendBoolBusyRetry(t *testing.T) {
	c, port := newFakeCodec(nak, nak, '1')
	got, err := c.sendBool("AP")
	if err != nil {
		t.Fatalf("sendBool failed: %v", err)
	}
	if !got {
		t.Error("sendBool = false, want true")
	}
	frame := []byte(":AP#")
	want := [][]byte{frame, frame, frame}
	if diff := cmp.Diff(port.writes, want); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
	if port.flushes != 3 {
		t.Errorf("flushes = %d, want 3", port.flushes)
	}
}

func TestSendBoolShortRead(t *testing.T) {
	c, _ := newFakeCodec()
	if _, err := c.sendBool("AP"); !errors.Is(err, errShortRead) {
		t.Errorf("sendBool error = %v, want short read", err)
	}
}

func TestSendString(t *testing.T) {
	c, port := newFakeCodec('1', '0', ':', '3', '0', ':', '0', '0', '#')
	got, err := c.sendString("GS")
	if err != nil {
		t.Fatalf("sendString failed: %v", err)
	}
	if got != "10:30:00" {
		t.Errorf("sendString = %q, want %q", got, "10:30:00")
	}
	if len(port.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(port.writes))
	}
}

func TestSendStringBusyRetry(t *testing.T) {
	c, port := newFakeCodec(nak, 'a', 'b', '#')
	got, err := c.sendString("ED")
	if err != nil {
		t.Fatalf("sendString failed: %v", err)
	}
	if got != "ab" {
		t.Errorf("sendString = %q, want %q", got, "ab")
	}
	if len(port.writes) != 2 {
		t.Errorf("writes = %d, want 2", len(port.writes))
	}
}

func TestSendStringBusyMidDataIsPayload(t *testing.T) {
	c, port := newFakeCodec('a', 'b', nak, 'c', '#')
	got, err := c.sendString("ED")
	if err != nil {
		t.Fatalf("sendString failed: %v", err)
	}
	if got != "ab\x15c" {
		t.Errorf("sendString = %q, want %q", got, "ab\x15c")
	}
	if len(port.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(port.writes))
	}
}

func TestSendStringShortRead(t *testing.T) {
	c, _ := newFakeCodec('a', 'b')
	if _, err := c.sendString("ED"); !errors.Is(err, errShortRead) {
		t.Errorf("sendString error = %v, want short read", err)
	}
}

func TestSendFixed(t *testing.T) {
	c, port := newFakeCodec('0')
	got, err := c.sendFixed("MS", 1)
	if err != nil {
		t.Fatalf("sendFixed failed: %v", err)
	}
	if diff := cmp.Diff(got, []byte{'0'}); diff != "" {
		t.Errorf("unexpected reply: got(-)/want(+):\n%s", diff)
	}
	want := [][]byte{[]byte(":MS#")}
	if diff := cmp.Diff(port.writes, want); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
}

func TestSendNone(t *testing.T) {
	c, port := newFakeCodec()
	if err := c.sendNone("Q"); err != nil {
		t.Fatalf("sendNone failed: %v", err)
	}
	want := [][]byte{[]byte(":Q#")}
	if diff := cmp.Diff(port.writes, want); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
}

func TestProbeAlignment(t *testing.T) {
	c, port := newFakeCodec(alignPolar)
	got, err := c.probeAlignment()
	if err != nil {
		t.Fatalf("probeAlignment failed: %v", err)
	}
	if got != alignPolar {
		t.Errorf("probeAlignment = %q, want %q", got, alignPolar)
	}
	want := [][]byte{{ack}}
	if diff := cmp.Diff(port.writes, want); diff != "" {
		t.Errorf("unexpected writes: got(-)/want(+):\n%s", diff)
	}
}
