package dome

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// bridgeResponse is the payload a dome bridge answers with: the raw reply
// frame plus any device-side error rendered as text.
type bridgeResponse struct {
	ADUResponse []byte
	Error       string
}

// remoteTransport relays Modbus RTU frames to a dome bridge over HTTP. The
// embedded handler supplies frame encoding; only the byte transport is
// replaced.
type remoteTransport struct {
	*modbus.RTUClientHandler
	url string
}

func newRemoteTransport(url string, slaveID byte) *remoteTransport {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = slaveID
	return &remoteTransport{RTUClientHandler: handler, url: url}
}

func (t *remoteTransport) Send(aduRequest []byte) ([]byte, error) {
	resp, err := http.Post(t.url, "application/octet-stream", bytes.NewReader(aduRequest))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("bridge returned %s: %s", resp.Status, body)
	}
	var reply bridgeResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.Wrap(err, "decoding bridge response")
	}
	if reply.Error != "" {
		return reply.ADUResponse, errors.New(reply.Error)
	}
	return reply.ADUResponse, nil
}

func (t *remoteTransport) Connect() error { return nil }

func (t *remoteTransport) Close() error { return nil }
