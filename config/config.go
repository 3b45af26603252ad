// Package config loads the settings of the uavlink command.
//
// Settings come from built-in defaults, then a YAML file, then UAVLINK_*
// environment variables. Variables may also be placed in a .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/uavlink/telemetry"
	"github.com/sarchlab/uavlink/transport"
	"github.com/sarchlab/uavlink/uavobj"
)

// Config is the full configuration of a uavlink run.
type Config struct {
	Link      LinkConfig      `yaml:"link"`
	Ports     PortConfig      `yaml:"ports"`
	Serial    SerialConfig    `yaml:"serial"`
	Ground    GroundConfig    `yaml:"ground"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Recording RecordingConfig `yaml:"recording"`
	Log       LogConfig       `yaml:"log"`
	Objects   []ObjectConfig  `yaml:"objects"`
}

// LinkConfig sets the timing of the telemetry link.
type LinkConfig struct {
	Baud              int           `yaml:"baud"`
	QueueSize         int           `yaml:"queue_size"`
	PriorityLane      bool          `yaml:"priority_lane"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	StatsPeriod       time.Duration `yaml:"stats_period"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PortConfig names the ports of the two channels.
type PortConfig struct {
	Primary   transport.Port `yaml:"primary"`
	Secondary transport.Port `yaml:"secondary"`
	Override  transport.Port `yaml:"override"`
}

// SerialConfig attaches a serial device to a port. An empty device leaves
// the port to an in-memory loopback.
type SerialConfig struct {
	Device string         `yaml:"device"`
	Port   transport.Port `yaml:"port"`
}

// GroundConfig sets up the simulated ground station.
type GroundConfig struct {
	LossRate   float64 `yaml:"loss_rate"`
	AnswerRate float64 `yaml:"answer_rate"`
	Seed       int64   `yaml:"seed"`
}

// MonitorConfig sets up the HTTP monitor.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	Browser bool `yaml:"browser"`
}

// RecordingConfig sets up the SQLite recording of the flight log and the
// link history. An empty path picks a unique name.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig sets where log lines go.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Verbose    bool   `yaml:"verbose"`
}

// ObjectConfig describes one simulated vehicle object.
type ObjectConfig struct {
	Name      string        `yaml:"name"`
	Priority  bool          `yaml:"priority"`
	Instances int           `yaml:"instances"`
	Telemetry ModeConfig    `yaml:"telemetry"`
	Logging   ModeConfig    `yaml:"logging"`
	Every     time.Duration `yaml:"every"`
}

// ModeConfig is an update mode with its period.
type ModeConfig struct {
	Mode   string        `yaml:"mode"`
	Period time.Duration `yaml:"period"`
	Acked  bool          `yaml:"acked,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Link: LinkConfig{
			Baud:              57600,
			QueueSize:         telemetry.DefaultQueueSize,
			PriorityLane:      true,
			RequestTimeout:    telemetry.DefaultRequestTimeout,
			MaxRetries:        telemetry.DefaultMaxRetries,
			StatsPeriod:       telemetry.DefaultStatsPeriod,
			ConnectionTimeout: telemetry.DefaultConnectionTimeout,
		},
		Ports: PortConfig{
			Primary:   1,
			Secondary: 2,
		},
		Ground: GroundConfig{
			LossRate:   0.05,
			AnswerRate: 1,
			Seed:       1,
		},
		Monitor: MonitorConfig{
			Port: 0,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Objects: []ObjectConfig{
			{
				Name:      "AttitudeState",
				Instances: 1,
				Telemetry: ModeConfig{Mode: "THROTTLED", Period: 100 * time.Millisecond},
				Logging:   ModeConfig{Mode: "PERIODIC", Period: time.Second},
				Every:     20 * time.Millisecond,
			},
			{
				Name:      "GPSPosition",
				Instances: 1,
				Telemetry: ModeConfig{Mode: "PERIODIC", Period: time.Second},
				Logging:   ModeConfig{Mode: "ON_CHANGE"},
				Every:     200 * time.Millisecond,
			},
			{
				Name:      "FlightStatus",
				Priority:  true,
				Instances: 1,
				Telemetry: ModeConfig{Mode: "ON_CHANGE", Acked: true},
				Logging:   ModeConfig{Mode: "ON_CHANGE"},
				Every:     2 * time.Second,
			},
			{
				Name:      "ActuatorCommand",
				Instances: 2,
				Telemetry: ModeConfig{Mode: "MANUAL"},
				Logging:   ModeConfig{Mode: "THROTTLED", Period: 500 * time.Millisecond},
				Every:     50 * time.Millisecond,
			},
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path and
// the environment. The .env file at envFile is read first if it exists. Empty
// paths are skipped.
func Load(path, envFile string) (Config, error) {
	c := Default()

	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := c.decode(data); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(c)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// Write encodes the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return err
	}

	return enc.Close()
}

type envVar struct {
	name  string
	apply func(c *Config, value string) error
}

var envVars = []envVar{
	{"UAVLINK_BAUD", func(c *Config, v string) error {
		return parseInt(v, &c.Link.Baud)
	}},
	{"UAVLINK_QUEUE_SIZE", func(c *Config, v string) error {
		return parseInt(v, &c.Link.QueueSize)
	}},
	{"UAVLINK_PRIORITY_LANE", func(c *Config, v string) error {
		return parseBool(v, &c.Link.PriorityLane)
	}},
	{"UAVLINK_MAX_RETRIES", func(c *Config, v string) error {
		return parseInt(v, &c.Link.MaxRetries)
	}},
	{"UAVLINK_REQUEST_TIMEOUT", func(c *Config, v string) error {
		return parseDuration(v, &c.Link.RequestTimeout)
	}},
	{"UAVLINK_SERIAL_DEVICE", func(c *Config, v string) error {
		c.Serial.Device = v
		return nil
	}},
	{"UAVLINK_LOSS_RATE", func(c *Config, v string) error {
		return parseFloat(v, &c.Ground.LossRate)
	}},
	{"UAVLINK_MONITOR_PORT", func(c *Config, v string) error {
		c.Monitor.Enabled = true
		return parseInt(v, &c.Monitor.Port)
	}},
	{"UAVLINK_RECORDING_PATH", func(c *Config, v string) error {
		c.Recording.Enabled = true
		c.Recording.Path = v
		return nil
	}},
	{"UAVLINK_LOG_FILE", func(c *Config, v string) error {
		c.Log.File = v
		return nil
	}},
}

// ApplyEnv overrides settings with the UAVLINK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		value, ok := lookup(ev.name)
		if !ok {
			continue
		}

		if err := ev.apply(c, value); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}

	return nil
}

func parseInt(s string, out *int) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}

	*out = n

	return nil
}

func parseBool(s string, out *bool) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}

	*out = b

	return nil
}

func parseFloat(s string, out *float64) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}

	*out = f

	return nil
}

func parseDuration(s string, out *time.Duration) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*out = d

	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(transport.ValidBaud(c.Link.Baud),
		"link.baud %d is not one of %v", c.Link.Baud, transport.BaudRates)
	check(c.Link.QueueSize >= 2,
		"link.queue_size must be at least 2, got %d", c.Link.QueueSize)
	check(c.Link.RequestTimeout > 0, "link.request_timeout must be positive")
	check(c.Link.MaxRetries >= 0, "link.max_retries must not be negative")
	check(c.Link.StatsPeriod > 0, "link.stats_period must be positive")
	check(c.Link.ConnectionTimeout > 0,
		"link.connection_timeout must be positive")
	check(c.Ports.Primary != transport.NoPort, "ports.primary must be set")
	check(c.Serial.Device == "" || c.Serial.Port != transport.NoPort,
		"serial.port must be set when serial.device is")
	check(c.Ground.LossRate >= 0 && c.Ground.LossRate <= 1,
		"ground.loss_rate must be within [0, 1]")
	check(c.Ground.AnswerRate >= 0 && c.Ground.AnswerRate <= 1,
		"ground.answer_rate must be within [0, 1]")
	check(c.Monitor.Port == 0 || c.Monitor.Port >= 1000,
		"monitor.port must be 0 or at least 1000")

	names := make(map[string]bool)
	for _, o := range c.Objects {
		check(o.Name != "", "objects: every object needs a name")
		check(!names[o.Name], "objects: duplicated name %s", o.Name)
		names[o.Name] = true

		if _, err := o.Metadata(); err != nil {
			errs = append(errs, fmt.Errorf("objects.%s: %w", o.Name, err))
		}

		check(o.Instances >= 1,
			"objects.%s: instances must be at least 1", o.Name)
		check(o.Every >= 0, "objects.%s: every must not be negative", o.Name)
	}

	return errors.Join(errs...)
}

// Metadata converts the object's modes into registry metadata.
func (o ObjectConfig) Metadata() (uavobj.Metadata, error) {
	tm, err := uavobj.ParseUpdateMode(o.Telemetry.Mode)
	if err != nil {
		return uavobj.Metadata{}, fmt.Errorf("telemetry: %w", err)
	}

	lm, err := uavobj.ParseUpdateMode(o.Logging.Mode)
	if err != nil {
		return uavobj.Metadata{}, fmt.Errorf("logging: %w", err)
	}

	md := uavobj.Metadata{
		TelemetryMode:   tm,
		TelemetryPeriod: o.Telemetry.Period,
		TelemetryAcked:  o.Telemetry.Acked,
		LoggingMode:     lm,
		LoggingPeriod:   o.Logging.Period,
	}

	if needsPeriod(tm) && md.TelemetryPeriod <= 0 {
		return md, fmt.Errorf("telemetry mode %s needs a period", tm)
	}

	if needsPeriod(lm) && md.LoggingPeriod <= 0 {
		return md, fmt.Errorf("logging mode %s needs a period", lm)
	}

	return md, nil
}

func needsPeriod(m uavobj.UpdateMode) bool {
	return m == uavobj.UpdateModePeriodic || m == uavobj.UpdateModeThrottled
}
