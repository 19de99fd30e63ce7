package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"framepipe/internal/models"
	"framepipe/processing/frame"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"
	SourceRTSP   SourceType = "RTSP"

	DefaultConfigPath           string = "config.json"
	DefaultDetectorProcessorUrl string = "localhost:8080"
)

var SourcesList = [...]string{
	string(SourceLocal),
	string(SourceWebcam),
	string(SourceRTSP),
}

type DisplayBackend string

const (
	DisplayWindow  DisplayBackend = "window"
	DisplayHighGUI DisplayBackend = "highgui"
	DisplayNone    DisplayBackend = "none"
)

type LocalConfig struct {
	Path string `json:"path"`
	Loop bool   `json:"loop"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id"`
}

type RTSPConfig struct {
	Address   string `json:"address"`
	Launch    string `json:"launch,omitempty"`
	LatencyMS int    `json:"latency_ms"`
}

type InferenceConfig struct {
	Host      string `json:"host"`
	Model     string `json:"model"`
	Version   string `json:"version"`
	TimeoutMS int    `json:"timeout_ms"`
}

type OverlayConfig struct {
	RenderThreshold float32         `json:"render_threshold"`
	OutputThreshold float32         `json:"output_threshold"`
	Thickness       int             `json:"thickness"`
	Expansion       int             `json:"expansion"`
	Labels          models.LabelMap `json:"labels"`
}

type DisplayConfig struct {
	Backend    DisplayBackend `json:"backend"`
	WindowName string         `json:"window_name"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file,omitempty"`
}

// Settings is the serialized part of Config.
type Settings struct {
	ActiveSource SourceType `json:"active_source"`
	TargetFPS    uint       `json:"target_fps"`
	ScaledWidth  int        `json:"scaled_width"`
	ScaledHeight int        `json:"scaled_height"`
	PixelFormat  string     `json:"pixel_format"`

	Local  LocalConfig  `json:"local"`
	Webcam WebcamConfig `json:"webcam"`
	RTSP   RTSPConfig   `json:"rtsp"`

	Inference       InferenceConfig `json:"inference"`
	DispatchModulus uint            `json:"dispatch_modulus"`
	Overlay         OverlayConfig   `json:"overlay"`

	PopTimeoutMS int `json:"pop_timeout_ms"`
	FlushWarnMS  int `json:"flush_warn_ms"`

	Display DisplayConfig `json:"display"`
	Log     LogConfig     `json:"log"`
}

// Config is edited by the UI between runs. A running pipeline only ever sees
// a Clone taken at start.
type Config struct {
	mu sync.RWMutex

	Settings
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSource = s
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSource
}

func (c *Config) SetDispatchModulus(k uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DispatchModulus = k
}

func (c *Config) SetRenderThreshold(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Overlay.RenderThreshold = v
}

func (c *Config) Update(fn func(s *Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.Settings)
}

func (c *Config) PixelLayout() frame.Layout {
	return frame.ParseLayout(c.PixelFormat)
}

func (c *Config) PopTimeout() time.Duration {
	return time.Duration(c.PopTimeoutMS) * time.Millisecond
}

func (c *Config) FlushWarn() time.Duration {
	return time.Duration(c.FlushWarnMS) * time.Millisecond
}

func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutMS) * time.Millisecond
}

// Clone returns an independent snapshot.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.Settings
	s.Overlay.Labels = maps.Clone(c.Overlay.Labels)
	return &Config{Settings: s}
}

func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	switch c.ActiveSource {
	case SourceLocal, SourceWebcam, SourceRTSP:
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.ActiveSource))
	}
	if c.ActiveSource == SourceRTSP && c.RTSP.Address == "" && c.RTSP.Launch == "" {
		errs = append(errs, errors.New("rtsp source needs an address or a launch line"))
	}
	if frame.ParseLayout(c.PixelFormat) == frame.LayoutUnknown {
		errs = append(errs, fmt.Errorf("unsupported pixel format %q", c.PixelFormat))
	}
	if c.TargetFPS == 0 {
		errs = append(errs, errors.New("target_fps must be positive"))
	}
	if c.ScaledWidth <= 0 || c.ScaledHeight <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.ScaledWidth, c.ScaledHeight))
	}
	if c.DispatchModulus == 0 {
		errs = append(errs, errors.New("dispatch_modulus must be at least 1"))
	}
	if !unit(c.Overlay.RenderThreshold) || !unit(c.Overlay.OutputThreshold) {
		errs = append(errs, errors.New("overlay thresholds must be within [0,1]"))
	}
	if c.Overlay.Thickness < 1 {
		errs = append(errs, errors.New("overlay thickness must be at least 1"))
	}
	if c.Overlay.Expansion < 0 {
		errs = append(errs, errors.New("overlay expansion must not be negative"))
	}
	if c.PopTimeoutMS <= 0 || c.PopTimeoutMS >= 100 {
		errs = append(errs, fmt.Errorf("pop_timeout_ms must be within (0,100), got %d", c.PopTimeoutMS))
	}
	if c.Inference.TimeoutMS <= 0 {
		errs = append(errs, errors.New("inference timeout_ms must be positive"))
	}
	switch c.Display.Backend {
	case DisplayWindow, DisplayHighGUI, DisplayNone:
	default:
		errs = append(errs, fmt.Errorf("unknown display backend %q", c.Display.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func unit(v float32) bool {
	return v >= 0 && v <= 1
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(&c.Settings)
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

// LoadConfigFile overlays the file at path onto the defaults. A missing file
// is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

func NewDefaultConfig() *Config {
	return &Config{Settings: Settings{
		ActiveSource: SourceRTSP,
		TargetFPS:    30,
		ScaledWidth:  1280,
		ScaledHeight: 720,
		PixelFormat:  "I420",

		Local:  LocalConfig{Path: "..."},
		Webcam: WebcamConfig{DeviceID: ""},
		RTSP:   RTSPConfig{Address: "rtsp://192.168.53.1/live", LatencyMS: 200},

		Inference: InferenceConfig{
			Host:      DefaultDetectorProcessorUrl,
			Model:     "megadetector",
			Version:   "v5a.0.0",
			TimeoutMS: 5000,
		},
		DispatchModulus: 3,
		Overlay: OverlayConfig{
			RenderThreshold: 0.2,
			OutputThreshold: 0.005,
			Thickness:       4,
			Expansion:       0,
			Labels:          models.DefaultLabels(),
		},

		PopTimeoutMS: 10,
		FlushWarnMS:  50,

		Display: DisplayConfig{Backend: DisplayWindow, WindowName: "Video Stream"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}}
}
