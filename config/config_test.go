package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mountd.json")
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func configMap() map[string]interface{} {
	return map[string]interface{}{
		"serial_port":      "/dev/mount",
		"latitude":         28.7624,
		"longitude":        -17.8792,
		"altitude":         2396,
		"ha_soft_limits":   []float64{-85, 85},
		"dec_soft_limits":  []float64{-45, 85},
		"park_positions": map[string]interface{}{
			"stow": map[string]interface{}{"desc": "General stow position", "alt": 40, "az": 25},
		},
		"control_ips": []string{"10.2.6.201"},
		"http_addr":   "127.0.0.1:9003",
		"log_level":   "debug",
	}
}

func TestLoad(t *testing.T) {
	body, err := json.Marshal(configMap())
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	require.Equal(t, "/dev/mount", cfg.SerialPort)
	require.Equal(t, 28.7624, cfg.Latitude)
	require.Equal(t, []float64{-85, 85}, cfg.HASoftLimits)
	require.Equal(t, "General stow position", cfg.ParkPositions["stow"].Desc)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Nil(t, cfg.Dome)

	// Defaults fill the optional fields.
	require.Equal(t, 9600, cfg.SerialBaud)
	require.Equal(t, 5*time.Second, cfg.SerialReadTimeout())
	require.Equal(t, 90*time.Second, cfg.InitializeDeadline())
	require.Equal(t, 120*time.Second, cfg.SlewDeadline())
	require.Equal(t, time.Second, cfg.SlewPollInterval())
	require.Equal(t, 5*time.Second, cfg.IdlePollInterval())

	site := cfg.Site()
	require.Equal(t, 28.7624, site.Latitude)
	require.Equal(t, -17.8792, site.Longitude)
	require.Equal(t, 2396.0, site.Elevation)
}

func TestLoadDome(t *testing.T) {
	m := configMap()
	m["dome"] = map[string]interface{}{
		"serial_port": "/dev/dome",
		"serial_baud": 9600,
		"slave_id":    10,
	}
	body, err := json.Marshal(m)
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.NotNil(t, cfg.Dome)
	require.Equal(t, "/dev/dome", cfg.Dome.SerialPort)
	require.Equal(t, byte(10), cfg.Dome.SlaveID)
}

func TestLoadDomeBridge(t *testing.T) {
	m := configMap()
	m["dome"] = map[string]interface{}{
		"url":      "http://dome-pi:8502/send",
		"slave_id": 1,
	}
	body, err := json.Marshal(m)
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.NotNil(t, cfg.Dome)
	require.Equal(t, "http://dome-pi:8502/send", cfg.Dome.URL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, test := range []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"missing_serial_port", func(m map[string]interface{}) { delete(m, "serial_port") }, "serial_port"},
		{"bad_latitude", func(m map[string]interface{}) { m["latitude"] = 120 }, "latitude"},
		{"bad_longitude", func(m map[string]interface{}) { m["longitude"] = -300 }, "longitude"},
		{"reversed_ha_limits", func(m map[string]interface{}) { m["ha_soft_limits"] = []float64{85, -85} }, "ha_soft_limits"},
		{"short_dec_limits", func(m map[string]interface{}) { m["dec_soft_limits"] = []float64{-45} }, "dec_soft_limits"},
		{"bad_park_alt", func(m map[string]interface{}) {
			m["park_positions"] = map[string]interface{}{
				"stow": map[string]interface{}{"desc": "bad", "alt": 120, "az": 25},
			}
		}, "park position"},
		{"bad_control_ip", func(m map[string]interface{}) { m["control_ips"] = []string{"observatory"} }, "control ip"},
		{"dome_missing_port", func(m map[string]interface{}) {
			m["dome"] = map[string]interface{}{"serial_baud": 9600}
		}, "dome needs either url or serial_port"},
	} {
		t.Run(test.name, func(t *testing.T) {
			m := configMap()
			test.mutate(m)
			body, err := json.Marshal(m)
			require.NoError(t, err)
			_, err = Load(writeConfig(t, body))
			require.ErrorContains(t, err, test.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorContains(t, err, "reading config")
}
