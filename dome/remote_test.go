package dome

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRemoteBridgeRoundTrip(t *testing.T) {
	var requests [][]byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Error(err)
		}
		requests = append(requests, body)
		// A write-single-register reply echoes the request frame, CRC
		// included.
		json.NewEncoder(w).Encode(bridgeResponse{ADUResponse: body})
	}))
	defer ts.Close()

	d := ConnectRemote(ts.URL, 10)
	if err := d.NotifyParked(); err != nil {
		t.Fatalf("notify through bridge: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("bridge saw %d requests, want 1", len(requests))
	}
	frame := requests[0]
	if len(frame) < 6 {
		t.Fatalf("frame = % x, too short", frame)
	}
	if frame[0] != 10 || frame[1] != 0x06 {
		t.Errorf("frame = % x, want slave 10 writing a single register", frame)
	}
	if frame[2] != 0 || frame[3] != regMode || frame[4] != 0 || frame[5] != byte(modeParked) {
		t.Errorf("frame = % x, want mode register set to %d", frame, modeParked)
	}
}

func TestRemoteBridgeDeviceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridgeResponse{Error: "dome controller timeout"})
	}))
	defer ts.Close()

	d := ConnectRemote(ts.URL, 1)
	err := d.NotifyStopped()
	if err == nil || !strings.Contains(err.Error(), "dome controller timeout") {
		t.Errorf("err = %v, want the bridge error passed through", err)
	}
	if d.connected {
		t.Error("link still marked connected after a bridge error")
	}
}
