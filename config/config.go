// Package config loads and validates the daemon's JSON configuration file.
package config

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/kestrel-observatory/mountd/astrometry"
)

// ParkPosition is a named stow pointing in horizontal coordinates.
type ParkPosition struct {
	Desc string  `mapstructure:"desc"`
	Alt  float64 `mapstructure:"alt"`
	Az   float64 `mapstructure:"az"`
}

// Dome configures the optional dome controller link: a local serial port
// or the URL of a bridge relaying Modbus frames over HTTP.
type Dome struct {
	SerialPort string `mapstructure:"serial_port"`
	SerialBaud int    `mapstructure:"serial_baud"`
	SlaveID    byte   `mapstructure:"slave_id"`
	URL        string `mapstructure:"url"`
}

// Config is the daemon configuration. Timeouts and delays are seconds.
type Config struct {
	SerialPort    string  `mapstructure:"serial_port"`
	SerialBaud    int     `mapstructure:"serial_baud"`
	SerialTimeout float64 `mapstructure:"serial_timeout"`

	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Altitude  float64 `mapstructure:"altitude"`

	InitializeTimeout float64 `mapstructure:"initialize_timeout"`
	SlewTimeout       float64 `mapstructure:"slew_timeout"`
	SlewLoopDelay     float64 `mapstructure:"slew_loop_delay"`
	IdleLoopDelay     float64 `mapstructure:"idle_loop_delay"`

	HASoftLimits  []float64               `mapstructure:"ha_soft_limits"`
	DecSoftLimits []float64               `mapstructure:"dec_soft_limits"`
	ParkPositions map[string]ParkPosition `mapstructure:"park_positions"`

	ControlIPs []string `mapstructure:"control_ips"`
	HTTPAddr   string   `mapstructure:"http_addr"`
	LogLevel   string   `mapstructure:"log_level"`

	Dome *Dome `mapstructure:"dome"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("serial_baud", 9600)
	v.SetDefault("serial_timeout", 5)
	v.SetDefault("initialize_timeout", 90)
	v.SetDefault("slew_timeout", 120)
	v.SetDefault("slew_loop_delay", 1)
	v.SetDefault("idle_loop_delay", 5)
	v.SetDefault("http_addr", ":9003")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SerialPort == "" {
		return errors.New("serial_port must be set")
	}
	if c.SerialBaud <= 0 {
		return errors.Errorf("serial_baud %d must be positive", c.SerialBaud)
	}
	if c.SerialTimeout <= 0 {
		return errors.Errorf("serial_timeout %v must be positive", c.SerialTimeout)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return errors.Errorf("latitude %v outside [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errors.Errorf("longitude %v outside [-180, 180]", c.Longitude)
	}
	if c.Altitude < 0 {
		return errors.Errorf("altitude %v must not be negative", c.Altitude)
	}
	if c.InitializeTimeout <= 0 || c.SlewTimeout <= 0 {
		return errors.New("initialize_timeout and slew_timeout must be positive")
	}
	if c.SlewLoopDelay <= 0 || c.IdleLoopDelay <= 0 {
		return errors.New("slew_loop_delay and idle_loop_delay must be positive")
	}
	if err := validateLimits(c.HASoftLimits, "ha_soft_limits", 180); err != nil {
		return err
	}
	if err := validateLimits(c.DecSoftLimits, "dec_soft_limits", 90); err != nil {
		return err
	}
	for name, park := range c.ParkPositions {
		if park.Alt < 0 || park.Alt > 90 {
			return errors.Errorf("park position %q alt %v outside [0, 90]", name, park.Alt)
		}
		if park.Az < 0 || park.Az > 360 {
			return errors.Errorf("park position %q az %v outside [0, 360]", name, park.Az)
		}
	}
	for _, ip := range c.ControlIPs {
		if net.ParseIP(ip) == nil {
			return errors.Errorf("control ip %q is not a valid address", ip)
		}
	}
	if c.Dome != nil && c.Dome.URL == "" {
		if c.Dome.SerialPort == "" {
			return errors.New("dome needs either url or serial_port")
		}
		if c.Dome.SerialBaud <= 0 {
			return errors.Errorf("dome.serial_baud %d must be positive", c.Dome.SerialBaud)
		}
	}
	return nil
}

func validateLimits(limits []float64, name string, bound float64) error {
	if len(limits) != 2 {
		return errors.Errorf("%s must hold exactly two values", name)
	}
	if limits[0] >= limits[1] {
		return errors.Errorf("%s minimum %v must be below maximum %v", name, limits[0], limits[1])
	}
	for _, v := range limits {
		if v < -bound || v > bound {
			return errors.Errorf("%s value %v outside [%v, %v]", name, v, -bound, bound)
		}
	}
	return nil
}

// Site returns the observing site described by the config.
func (c *Config) Site() astrometry.Site {
	return astrometry.Site{Latitude: c.Latitude, Longitude: c.Longitude, Elevation: c.Altitude}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *Config) SerialReadTimeout() time.Duration { return seconds(c.SerialTimeout) }

func (c *Config) InitializeDeadline() time.Duration { return seconds(c.InitializeTimeout) }

func (c *Config) SlewDeadline() time.Duration { return seconds(c.SlewTimeout) }

func (c *Config) SlewPollInterval() time.Duration { return seconds(c.SlewLoopDelay) }

func (c *Config) IdlePollInterval() time.Duration { return seconds(c.IdleLoopDelay) }
