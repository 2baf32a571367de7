package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

// mountlogger tails the daemon status websocket and relays every payload to
// InfluxDB. Configuration comes from INFLUX_SERVER, INFLUX_TOKEN and
// MOUNTD_ADDRESS.
func main() {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writeApi := client.WriteApi("kestrel", "mount.raw")
	defer writeApi.Close()

	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()

	for {
		if err := logStatus(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

func logStatus(writeApi api.WriteApi) error {
	url := os.Getenv("MOUNTD_ADDRESS")
	if url == "" {
		url = "ws://localhost:9003/api/tel/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")

		writeApi.WritePoint(influxdb2.NewPoint("mount.status",
			nil,
			fields,
			time.Now(),
		))
	}
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}
