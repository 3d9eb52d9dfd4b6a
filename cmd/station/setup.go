package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"

	"github.com/banshee-data/sort.station/internal/actuator"
	"github.com/banshee-data/sort.station/internal/camera"
	"github.com/banshee-data/sort.station/internal/camera/device"
	"github.com/banshee-data/sort.station/internal/config"
	"github.com/banshee-data/sort.station/internal/detection"
	"github.com/banshee-data/sort.station/internal/fsutil"
	"github.com/banshee-data/sort.station/internal/httputil"
	"github.com/banshee-data/sort.station/internal/serialmux"
	"github.com/banshee-data/sort.station/internal/timeutil"
)

// devArmCommands are the letters the simulated arm accepts, matching the
// firmware's prompt. Anything else, including the reset code, is answered
// with "Invalid command.".
const devArmCommands = "AMGP"

// overrides are the command-line values that win over file and environment.
type overrides struct {
	Listen       string
	Port         string
	Camera       string
	InferenceURL string
	DBPath       string
}

func currentOverrides() overrides {
	return overrides{
		Listen:       *listen,
		Port:         *port,
		Camera:       *cameraDevice,
		InferenceURL: *inferenceURL,
		DBPath:       *dbPath,
	}
}

// loadConfig layers the JSON file, STATION_* variables and flags. An empty
// path uses config.DefaultConfigPath when that file exists.
func loadConfig(path string, getenv func(string) string, o overrides) (*config.StationConfig, error) {
	cfg := &config.StationConfig{}
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.LoadStationConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.Listen, o.Listen)
	set(&cfg.SerialPort, o.Port)
	set(&cfg.CameraDevice, o.Camera)
	set(&cfg.InferenceURL, o.InferenceURL)
	set(&cfg.DBPath, o.DBPath)
	return cfg, nil
}

// openSource picks the frame source: a replay directory when given, a
// synthetic frame in dev mode, otherwise the configured camera. A camera that
// cannot be opened yet does not stop the kiosk: captures fail as transient
// acquisition errors and the device is retried. Only a binary built without
// camera support is an error.
func openSource(cfg *config.StationConfig, dev bool, replay string, clock timeutil.Clock) (camera.Source, error) {
	switch {
	case replay != "":
		src, err := camera.NewReplaySource(fsutil.OSFileSystem{}, clock, replay, true)
		if err != nil {
			return nil, err
		}
		log.Printf("replaying %d images from %s", src.Len(), replay)
		return src, nil
	case dev:
		return camera.NewStaticSource(devFrame(640, 480), clock), nil
	case !device.Supported:
		return nil, fmt.Errorf("camera %s: %w", cfg.GetCameraDevice(), device.ErrUnsupported)
	default:
		name := cfg.GetCameraDevice()
		src := camera.NewReopeningSource(func() (camera.Source, error) {
			return device.Open(name, clock, device.Options{})
		}, clock, camera.DefaultReopenInterval)
		if err := src.Err(); err != nil {
			log.Printf("camera %s not available, will keep retrying: %v", name, err)
		}
		return src, nil
	}
}

func devFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 96, G: 96, B: 96, A: 255}), image.Point{}, draw.Src)
	return img
}

// openPeer connects to the sorting arm. A missing or unopenable port leaves
// the station Disconnected rather than failing startup; the returned mux is
// nil in that case.
func openPeer(cfg *config.StationConfig, dev, disabled bool) (actuator.Peer, serialmux.SerialMuxInterface) {
	switch {
	case disabled:
		return actuator.Disconnected{Reason: "actuator disabled"}, nil
	case dev:
		mux := serialmux.NewDevSerialMux(devArmCommands)
		return actuator.Connected{Mux: mux, Port: "simulated"}, mux
	}

	path := cfg.GetSerialPort()
	if path == "" {
		return actuator.Disconnected{Reason: "no serial port configured"}, nil
	}
	opts := cfg.GetPortOptions()
	mux, err := serialmux.NewRealSerialMux(path, opts)
	if err != nil {
		log.Printf("failed to open serial port %s: %v", path, err)
		return actuator.Disconnected{Reason: fmt.Sprintf("failed to open %s: %v", path, err)}, nil
	}
	log.Printf("opened serial port %s (%s)", path, opts)
	return actuator.Connected{Mux: mux, Port: path}, mux
}

// newDetector returns the inference client. Dev mode without an explicit
// inference URL uses a detector that never finds anything.
func newDetector(cfg *config.StationConfig, dev, explicitURL bool) detection.Detector {
	if dev && !explicitURL {
		return detection.NopDetector
	}
	client := httputil.NewStandardClient(cfg.GetInferenceTimeout())
	return detection.NewHTTPDetector(client, cfg.GetInferenceURL())
}
