package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/SplitScreen/internal/compositor"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
)

// EnvPrefix prefixes environment overrides, e.g. SPLITSCREEN_CAMERA_DEVICE
const EnvPrefix = "SPLITSCREEN"

// Rect places a panel on the display
type Rect struct {
	X      int `json:"x" yaml:"x" mapstructure:"x"`
	Y      int `json:"y" yaml:"y" mapstructure:"y"`
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// Rectangle converts r to image coordinates
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DisplayConfig represents the composed view window
type DisplayConfig struct {
	Width      int    `json:"width" yaml:"width" mapstructure:"width"`
	Height     int    `json:"height" yaml:"height" mapstructure:"height"`
	Background string `json:"background" yaml:"background" mapstructure:"background"`
	Title      string `json:"title" yaml:"title" mapstructure:"title"`
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// LayoutConfig holds the three panel rectangles
type LayoutConfig struct {
	App    Rect `json:"app" yaml:"app" mapstructure:"app"`
	Camera Rect `json:"camera" yaml:"camera" mapstructure:"camera"`
	Logo   Rect `json:"logo" yaml:"logo" mapstructure:"logo"`
}

// WindowCaptureConfig configures the app panel source
type WindowCaptureConfig struct {
	FPS              int      `json:"fps" yaml:"fps" mapstructure:"fps"`
	TimeoutMs        int      `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms"`
	FailureThreshold int      `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Backend          string   `json:"backend" yaml:"backend" mapstructure:"backend"`
	ExcludeTitles    []string `json:"exclude_titles" yaml:"exclude_titles" mapstructure:"exclude_titles"`
}

// Timeout is the watchdog limit for one snapshot
func (c WindowCaptureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CameraConfig configures the camera panel source
type CameraConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Driver           string `json:"driver" yaml:"driver" mapstructure:"driver"`
	Device           string `json:"device" yaml:"device" mapstructure:"device"`
	Width            int    `json:"width" yaml:"width" mapstructure:"width"`
	Height           int    `json:"height" yaml:"height" mapstructure:"height"`
	FPS              int    `json:"fps" yaml:"fps" mapstructure:"fps"`
	Format           string `json:"format" yaml:"format" mapstructure:"format"`
	ReadTimeoutMs    int    `json:"read_timeout_ms" yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// ReadTimeout bounds a single frame read
func (c CameraConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// LogoConfig configures the static branding panel
type LogoConfig struct {
	ImagePath string `json:"image_path" yaml:"image_path" mapstructure:"image_path"`
	Text      string `json:"text" yaml:"text" mapstructure:"text"`
}

// RenderConfig configures composition
type RenderConfig struct {
	FPS    int    `json:"fps" yaml:"fps" mapstructure:"fps"`
	Scaler string `json:"scaler" yaml:"scaler" mapstructure:"scaler"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled bool                   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Widgets []overlay.WidgetConfig `json:"widgets" yaml:"widgets" mapstructure:"widgets"`
}

// Config represents the application configuration
type Config struct {
	LogLevel          string              `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	ServerPort        int                 `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	ServerEnabled     bool                `json:"server_enabled" yaml:"server_enabled" mapstructure:"server_enabled"`
	Display           DisplayConfig       `json:"display" yaml:"display" mapstructure:"display"`
	Layout            LayoutConfig        `json:"layout" yaml:"layout" mapstructure:"layout"`
	WindowCapture     WindowCaptureConfig `json:"window_capture" yaml:"window_capture" mapstructure:"window_capture"`
	Camera            CameraConfig        `json:"camera" yaml:"camera" mapstructure:"camera"`
	Logo              LogoConfig          `json:"logo" yaml:"logo" mapstructure:"logo"`
	Render            RenderConfig        `json:"render" yaml:"render" mapstructure:"render"`
	Overlay           OverlayConfig       `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
	ShutdownTimeoutMs int                 `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms" mapstructure:"shutdown_timeout_ms"`
}

// ShutdownTimeout bounds the join of capture workers on close
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:      "info",
		ServerPort:    8080,
		ServerEnabled: true,
		Display: DisplayConfig{
			Width:      1200,
			Height:     800,
			Background: "#202020",
			Title:      "SplitScreen",
			Enabled:    true,
		},
		Layout: LayoutConfig{
			App:    Rect{X: 10, Y: 10, Width: 680, Height: 780},
			Camera: Rect{X: 700, Y: 10, Width: 490, Height: 570},
			Logo:   Rect{X: 700, Y: 590, Width: 490, Height: 200},
		},
		WindowCapture: WindowCaptureConfig{
			FPS:              10,
			TimeoutMs:        2000,
			FailureThreshold: compositor.DefaultFailureThreshold,
			Backend:          "auto",
			ExcludeTitles:    []string{},
		},
		Camera: CameraConfig{
			Enabled:          true,
			Driver:           "v4l2",
			Device:           "0",
			Width:            640,
			Height:           480,
			FPS:              30,
			ReadTimeoutMs:    1000,
			FailureThreshold: compositor.DefaultFailureThreshold,
		},
		Logo: LogoConfig{
			Text: "LOGO PLACEHOLDER",
		},
		Render: RenderConfig{
			FPS:    30,
			Scaler: "approx-bilinear",
		},
		Overlay: OverlayConfig{
			Enabled: true,
			Widgets: []overlay.WidgetConfig{
				{ID: "camera-status", Type: "status", Enabled: true, X: 706, Y: 596},
			},
		},
		ShutdownTimeoutMs: 3000,
	}
}

// setDefaults registers every key with viper so environment overrides
// apply to keys missing from the file
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("server_enabled", d.ServerEnabled)

	v.SetDefault("display.width", d.Display.Width)
	v.SetDefault("display.height", d.Display.Height)
	v.SetDefault("display.background", d.Display.Background)
	v.SetDefault("display.title", d.Display.Title)
	v.SetDefault("display.enabled", d.Display.Enabled)

	for name, r := range map[string]Rect{"app": d.Layout.App, "camera": d.Layout.Camera, "logo": d.Layout.Logo} {
		v.SetDefault("layout."+name+".x", r.X)
		v.SetDefault("layout."+name+".y", r.Y)
		v.SetDefault("layout."+name+".width", r.Width)
		v.SetDefault("layout."+name+".height", r.Height)
	}

	v.SetDefault("window_capture.fps", d.WindowCapture.FPS)
	v.SetDefault("window_capture.timeout_ms", d.WindowCapture.TimeoutMs)
	v.SetDefault("window_capture.failure_threshold", d.WindowCapture.FailureThreshold)
	v.SetDefault("window_capture.backend", d.WindowCapture.Backend)
	v.SetDefault("window_capture.exclude_titles", d.WindowCapture.ExcludeTitles)

	v.SetDefault("camera.enabled", d.Camera.Enabled)
	v.SetDefault("camera.driver", d.Camera.Driver)
	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("camera.format", d.Camera.Format)
	v.SetDefault("camera.read_timeout_ms", d.Camera.ReadTimeoutMs)
	v.SetDefault("camera.failure_threshold", d.Camera.FailureThreshold)

	v.SetDefault("logo.image_path", d.Logo.ImagePath)
	v.SetDefault("logo.text", d.Logo.Text)

	v.SetDefault("render.fps", d.Render.FPS)
	v.SetDefault("render.scaler", d.Render.Scaler)

	v.SetDefault("overlay.enabled", d.Overlay.Enabled)
	v.SetDefault("overlay.widgets", widgetDefaults(d.Overlay.Widgets))

	v.SetDefault("shutdown_timeout_ms", d.ShutdownTimeoutMs)
}

func widgetDefaults(widgets []overlay.WidgetConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(widgets))
	for _, w := range widgets {
		out = append(out, map[string]interface{}{
			"id":      w.ID,
			"type":    w.Type,
			"enabled": w.Enabled,
			"x":       w.X,
			"y":       w.Y,
		})
	}
	return out
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/splitscreen/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "splitscreen", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(actualConfigPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if err := m.load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			if err := m.refresh(); err != nil {
				return nil, err
			}
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk
func (m *Manager) load() error {
	if _, err := os.Stat(m.configPath); err != nil {
		return err
	}
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return m.refresh()
}

// refresh rebuilds the typed config from viper's merged view
func (m *Manager) refresh() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.WindowCapture.ExcludeTitles == nil {
		cfg.WindowCapture.ExcludeTitles = []string{}
	}
	if cfg.Overlay.Widgets == nil {
		cfg.Overlay.Widgets = []overlay.WidgetConfig{}
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// BindFlag lets a command-line flag override key
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	if err := m.v.BindPFlag(key, flag); err != nil {
		return err
	}
	return m.refresh()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.WindowCapture.ExcludeTitles = append([]string(nil), m.config.WindowCapture.ExcludeTitles...)
	cfg.Overlay.Widgets = append([]overlay.WidgetConfig(nil), m.config.Overlay.Widgets...)
	return &cfg
}

// IsSet reports whether key is a known configuration key
func (m *Manager) IsSet(key string) bool {
	return m.v.IsSet(key)
}

// GetValue returns the raw value of key
func (m *Manager) GetValue(key string) interface{} {
	return m.v.Get(key)
}

// Set changes key, revalidates and saves
func (m *Manager) Set(key string, value interface{}) error {
	if !m.v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	prev := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.refresh(); err != nil {
		m.v.Set(key, prev)
		m.refresh()
		return err
	}

	cfg := m.Get()
	if _, err := cfg.Validate(); err != nil {
		m.v.Set(key, prev)
		m.refresh()
		return err
	}
	return m.Save()
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory holding the configuration file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
