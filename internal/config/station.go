// Package config loads the station configuration. JSON files provide the
// base, STATION_* environment variables (optionally from a .env file)
// override them, and command-line flags in cmd/station override both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/sort.station/internal/archive"
	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/overlay"
	"github.com/banshee-data/sort.station/internal/serialmux"
)

// DefaultConfigPath is where cmd/station looks when -config is not given.
const DefaultConfigPath = "config/station.json"

// Defaults for fields left unset.
const (
	DefaultCameraDevice     = "0"
	DefaultInferenceURL     = "http://127.0.0.1:8000/detect"
	DefaultInferenceTimeout = 5 * time.Second
	DefaultDBPath           = "sort_station.db"
	DefaultListen           = ":8080"
	DefaultNoticeDuration   = 2 * time.Second
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// StationConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything left unset.
type StationConfig struct {
	// Classification
	ActionMap map[string]string `json:"action_map,omitempty"`
	ResetCode *string           `json:"reset_code,omitempty"`

	// Archive
	SnapshotDir      *string `json:"snapshot_dir,omitempty"`
	MisclassifiedDir *string `json:"misclassified_dir,omitempty"`
	SequenceWidth    *int    `json:"sequence_width,omitempty"`

	// Operator surface
	OverlayInterval *string `json:"overlay_interval,omitempty"` // duration string like "30ms"
	NoticeDuration  *string `json:"notice_duration,omitempty"`  // duration string like "2s"

	// Peripherals
	SerialPort       *string `json:"serial_port,omitempty"` // empty means no arm attached
	BaudRate         *int    `json:"baud_rate,omitempty"`
	CameraDevice     *string `json:"camera_device,omitempty"`
	InferenceURL     *string `json:"inference_url,omitempty"`
	InferenceTimeout *string `json:"inference_timeout,omitempty"`

	// Storage and HTTP
	DBPath *string `json:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// LoadStationConfig loads a StationConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadStationConfig(path string) (*StationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &StationConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnv reads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from STATION_* variables looked up with getenv
// (os.Getenv in production). Numeric variables that do not parse are an
// error rather than silently ignored.
func (c *StationConfig) ApplyEnv(getenv func(string) string) error {
	strs := []struct {
		key string
		dst **string
	}{
		{"STATION_RESET_CODE", &c.ResetCode},
		{"STATION_SNAPSHOT_DIR", &c.SnapshotDir},
		{"STATION_MISCLASSIFIED_DIR", &c.MisclassifiedDir},
		{"STATION_OVERLAY_INTERVAL", &c.OverlayInterval},
		{"STATION_NOTICE_DURATION", &c.NoticeDuration},
		{"STATION_SERIAL_PORT", &c.SerialPort},
		{"STATION_CAMERA_DEVICE", &c.CameraDevice},
		{"STATION_INFERENCE_URL", &c.InferenceURL},
		{"STATION_INFERENCE_TIMEOUT", &c.InferenceTimeout},
		{"STATION_DB_PATH", &c.DBPath},
		{"STATION_LISTEN", &c.Listen},
	}
	for _, s := range strs {
		if v := getenv(s.key); v != "" {
			*s.dst = ptrString(v)
		}
	}

	ints := []struct {
		key string
		dst **int
	}{
		{"STATION_SEQUENCE_WIDTH", &c.SequenceWidth},
		{"STATION_BAUD_RATE", &c.BaudRate},
	}
	for _, s := range ints {
		v := getenv(s.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = ptrInt(n)
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *StationConfig) Validate() error {
	if c.ActionMap != nil || c.ResetCode != nil {
		if _, err := c.actions(); err != nil {
			return err
		}
	}

	if c.SequenceWidth != nil && (*c.SequenceWidth < 1 || *c.SequenceWidth > 9) {
		return fmt.Errorf("sequence_width must be between 1 and 9, got %d", *c.SequenceWidth)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"overlay_interval", c.OverlayInterval},
		{"notice_duration", c.NoticeDuration},
		{"inference_timeout", c.InferenceTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, parsed)
		}
	}
	return nil
}

func (c *StationConfig) actions() (detection.ActionMap, error) {
	reset := detection.DefaultResetCode
	if c.ResetCode != nil {
		if len(*c.ResetCode) != 1 {
			return detection.ActionMap{}, fmt.Errorf("reset_code must be a single letter, got %q", *c.ResetCode)
		}
		reset = (*c.ResetCode)[0]
	}
	if c.ActionMap == nil {
		def := detection.DefaultActionMap()
		raw := make(map[string]string, def.Len())
		for _, label := range def.Labels() {
			code, _ := def.Code(label)
			raw[label] = string(code)
		}
		return detection.NewActionMap(raw, reset)
	}
	return detection.NewActionMap(c.ActionMap, reset)
}

// GetActions returns the validated label→command table, falling back to the
// stock table when the configured one is invalid.
func (c *StationConfig) GetActions() detection.ActionMap {
	m, err := c.actions()
	if err != nil {
		return detection.DefaultActionMap()
	}
	return m
}

// GetArchiveOptions returns the archive layout.
func (c *StationConfig) GetArchiveOptions() archive.Options {
	opts := archive.Options{}
	if c.SnapshotDir != nil {
		opts.SnapshotDir = *c.SnapshotDir
	}
	if c.MisclassifiedDir != nil {
		opts.MisclassifiedDir = *c.MisclassifiedDir
	}
	if c.SequenceWidth != nil {
		opts.SequenceWidth = *c.SequenceWidth
	}
	return opts
}

// GetOverlayInterval returns the live overlay period.
func (c *StationConfig) GetOverlayInterval() time.Duration {
	return parseDurationOr(c.OverlayInterval, overlay.DefaultInterval)
}

// GetNoticeDuration returns how long status notices stay visible.
func (c *StationConfig) GetNoticeDuration() time.Duration {
	return parseDurationOr(c.NoticeDuration, DefaultNoticeDuration)
}

// GetInferenceTimeout returns the per-request inference timeout.
func (c *StationConfig) GetInferenceTimeout() time.Duration {
	return parseDurationOr(c.InferenceTimeout, DefaultInferenceTimeout)
}

// GetSerialPort returns the arm's serial device, or "" when none is attached.
func (c *StationConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetPortOptions returns the serial line settings.
func (c *StationConfig) GetPortOptions() serialmux.PortOptions {
	opts := serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate}
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	return opts
}

// GetCameraDevice returns the camera index or stream URL.
func (c *StationConfig) GetCameraDevice() string {
	return stringOr(c.CameraDevice, DefaultCameraDevice)
}

// GetInferenceURL returns the detector endpoint.
func (c *StationConfig) GetInferenceURL() string {
	return stringOr(c.InferenceURL, DefaultInferenceURL)
}

// GetDBPath returns the history database path.
func (c *StationConfig) GetDBPath() string {
	return stringOr(c.DBPath, DefaultDBPath)
}

// GetListen returns the HTTP listen address.
func (c *StationConfig) GetListen() string {
	return stringOr(c.Listen, DefaultListen)
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
