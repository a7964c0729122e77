// Package config parses usbterm.toml (or usbterm.yaml) configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
)

// DefaultAccentColor is the default TUI accent color (teal).
const DefaultAccentColor = "#2AA198"

// DefaultLogDir is where session logs go when log.dir is not set.
const DefaultLogDir = ".usbterm/logs"

// hexColorRe matches a 6-digit hex color string like "#2AA198".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Config is the top-level usbterm configuration.
type Config struct {
	Serial        SerialConfig        `toml:"serial" yaml:"serial"`
	Transport     TransportConfig     `toml:"transport" yaml:"transport"`
	Log           LogConfig           `toml:"log" yaml:"log"`
	Chart         ChartConfig         `toml:"chart" yaml:"chart"`
	Terminal      TerminalConfig      `toml:"terminal" yaml:"terminal"`
	Notifications NotificationsConfig `toml:"notifications" yaml:"notifications"`

	// Source is the file the config was loaded from, empty for defaults.
	Source string `toml:"-" yaml:"-"`
}

// SerialConfig describes the serial line.
type SerialConfig struct {
	Port     string `toml:"port" yaml:"port"` // empty = detect
	BaudRate int    `toml:"baud_rate" yaml:"baud_rate"`
	DataBits int    `toml:"data_bits" yaml:"data_bits"`
	StopBits string `toml:"stop_bits" yaml:"stop_bits"`
	Parity   string `toml:"parity" yaml:"parity"`
}

// TransportConfig selects how the device is reached.
type TransportConfig struct {
	Kind        string        `toml:"kind" yaml:"kind"` // serial, websocket or sim
	URL         string        `toml:"url" yaml:"url"`
	SimInterval time.Duration `toml:"sim_interval" yaml:"sim_interval"`
}

// LogConfig controls the session data log.
type LogConfig struct {
	Dir          string        `toml:"dir" yaml:"dir"`
	Retention    int           `toml:"retention" yaml:"retention"` // session files to keep; 0 = unlimited
	SyncWrites   bool          `toml:"sync_writes" yaml:"sync_writes"`
	DrainTimeout time.Duration `toml:"drain_timeout" yaml:"drain_timeout"`
}

// ChartConfig controls the strip chart.
type ChartConfig struct {
	RefreshInterval time.Duration `toml:"refresh_interval" yaml:"refresh_interval"`
	FullScale       float64       `toml:"full_scale" yaml:"full_scale"`
	LogMalformed    bool          `toml:"log_malformed" yaml:"log_malformed"`
}

// TerminalConfig controls send and receive behaviour.
type TerminalConfig struct {
	Newline              string        `toml:"newline" yaml:"newline"` // crlf, lf, cr or none
	Hex                  bool          `toml:"hex" yaml:"hex"`
	MaxLines             int           `toml:"max_lines" yaml:"max_lines"`
	ControlLines         bool          `toml:"control_lines" yaml:"control_lines"`
	ControlLinesInterval time.Duration `toml:"control_lines_interval" yaml:"control_lines_interval"`
	AccentColor          string        `toml:"accent_color" yaml:"accent_color"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL          string `toml:"url" yaml:"url"`
	OnBackground bool   `toml:"on_background" yaml:"on_background"`
	OnDisconnect bool   `toml:"on_disconnect" yaml:"on_disconnect"`
}

// Transport kinds.
const (
	KindSerial    = "serial"
	KindWebSocket = "websocket"
	KindSim       = "sim"
)

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Kind {
	case KindSerial, KindSim:
	case KindWebSocket:
		u, err := url.Parse(c.Transport.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("transport.url must be a ws:// or wss:// URL when transport.kind is %q", KindWebSocket))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be one of serial, websocket, sim (got %q)", c.Transport.Kind))
	}
	if c.Transport.Kind == KindSim && c.Transport.SimInterval <= 0 {
		errs = append(errs, fmt.Errorf("transport.sim_interval must be > 0"))
	}

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be > 0"))
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, fmt.Errorf("serial.data_bits must be between 5 and 8"))
	}
	switch c.Serial.StopBits {
	case "1", "1.5", "2":
	default:
		errs = append(errs, fmt.Errorf("serial.stop_bits must be \"1\", \"1.5\" or \"2\""))
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		errs = append(errs, fmt.Errorf("serial.parity must be none, odd, even, mark or space"))
	}

	if c.Log.Retention < 0 {
		errs = append(errs, fmt.Errorf("log.retention must be >= 0 (0 = unlimited)"))
	}
	if c.Log.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("log.drain_timeout must be >= 0"))
	}

	if c.Chart.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("chart.refresh_interval must be > 0"))
	}
	if c.Chart.FullScale <= 0 {
		errs = append(errs, fmt.Errorf("chart.full_scale must be > 0"))
	}

	if _, err := textutil.ParseNewline(c.Terminal.Newline); err != nil {
		errs = append(errs, fmt.Errorf("terminal.newline must be crlf, lf, cr or none"))
	}
	if c.Terminal.MaxLines <= 0 {
		errs = append(errs, fmt.Errorf("terminal.max_lines must be > 0"))
	}
	if c.Terminal.ControlLinesInterval <= 0 {
		errs = append(errs, fmt.Errorf("terminal.control_lines_interval must be > 0"))
	}
	if c.Terminal.AccentColor != "" && !hexColorRe.MatchString(c.Terminal.AccentColor) {
		errs = append(errs, fmt.Errorf("terminal.accent_color must be a hex color (e.g. \"#2AA198\")"))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with the built-in defaults.
func Defaults() Config {
	return Config{
		Serial: SerialConfig{
			BaudRate: 19200,
			DataBits: 8,
			StopBits: "1",
			Parity:   "none",
		},
		Transport: TransportConfig{
			Kind:        KindSerial,
			SimInterval: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Dir:          DefaultLogDir,
			Retention:    50,
			DrainTimeout: 2 * time.Second,
		},
		Chart: ChartConfig{
			RefreshInterval: time.Second,
			FullScale:       1024,
		},
		Terminal: TerminalConfig{
			Newline:              "crlf",
			MaxLines:             10000,
			ControlLinesInterval: 200 * time.Millisecond,
			AccentColor:          DefaultAccentColor,
		},
		Notifications: NotificationsConfig{
			OnBackground: true,
			OnDisconnect: true,
		},
	}
}

// Load reads the configuration from path. If path is empty, it walks up from
// the current working directory looking for usbterm.toml or usbterm.yaml and
// returns the defaults when none is found. Unknown keys are an error.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig()
		if err != nil {
			return nil, err
		}
		if found == "" {
			cfg := Defaults()
			return &cfg, nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Defaults()
	switch DetectFormat(path, data) {
	case FormatYAML:
		err = decodeYAML(data, &cfg)
	default:
		err = decodeTOML(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Source = path

	if cfg.Log.Dir != "" && !filepath.IsAbs(cfg.Log.Dir) {
		cfg.Log.Dir = filepath.Join(filepath.Dir(path), cfg.Log.Dir)
	}
	return &cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s (possible typos?)", joinKeys(keys))
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// configNames are the file names findConfig looks for, in order.
var configNames = []string{"usbterm.toml", "usbterm.yaml", "usbterm.yml"}

// findConfig walks up from the current directory looking for a config file.
// It returns "" when none exists.
func findConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}

	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
