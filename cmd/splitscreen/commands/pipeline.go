package commands

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/capture/gstreamer"
	"github.com/bryanchriswhite/SplitScreen/internal/capture/v4l2"
	"github.com/bryanchriswhite/SplitScreen/internal/config"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/output"
	"github.com/bryanchriswhite/SplitScreen/internal/session"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// validate clamps cfg in place and logs what was changed
func validate(cfg *config.Config) error {
	warnings, err := cfg.Validate()
	log := logger.WithComponent("config")
	for _, w := range warnings {
		log.Warn().Msg(w)
	}
	return err
}

// newRegistry connects to the X server. The composed view's own window is
// never offered for selection.
func newRegistry(cfg *config.Config) (*window.Registry, error) {
	exclude := append([]string(nil), cfg.WindowCapture.ExcludeTitles...)
	if cfg.Display.Title != "" {
		exclude = append(exclude, window.ExcludeTitle(cfg.Display.Title))
	}
	return window.NewRegistry(window.NewX11Backend(""), exclude)
}

func cameraOpener(cfg config.CameraConfig) capture.DeviceOpener {
	switch cfg.Driver {
	case config.DriverGStreamer:
		return gstreamer.Opener(gstreamer.Options{
			Device:       cfg.Device,
			Width:        cfg.Width,
			Height:       cfg.Height,
			FPS:          cfg.FPS,
			StartTimeout: 5 * time.Second,
		})
	default:
		return v4l2.Opener(v4l2.Options{
			Device: cfg.Device,
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: cfg.Format,
		})
	}
}

func logoSource(cfg config.LogoConfig) capture.Source {
	if cfg.ImagePath == "" {
		return nil
	}
	src, err := capture.LoadStaticSource("logo", cfg.ImagePath)
	if err != nil {
		logger.WithComponent("logo").Warn().
			Err(err).
			Str("path", cfg.ImagePath).
			Msg("Failed to load logo image, showing text instead")
		return nil
	}
	return src
}

// buildSession wires the window registry, the snapshotter, the camera and
// the logo into a session writing to outputs
func buildSession(cfg *config.Config, outputs []output.Output) (*session.Session, error) {
	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}

	snap, err := capture.NewRouter(cfg.WindowCapture.Backend, "")
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("failed to initialize window capture: %w", err)
	}

	sess, err := session.New(sessionOptions(cfg, registry, snap, outputs))
	if err != nil {
		snap.Close()
		registry.Close()
		return nil, err
	}
	return sess, nil
}

// sessionOptions always carries a camera driver, even when the camera
// starts disabled, so it can be enabled at runtime
func sessionOptions(cfg *config.Config, registry *window.Registry, snap capture.Snapshotter, outputs []output.Output) session.Options {
	return session.Options{
		Config:      cfg,
		Registry:    registry,
		Snapshotter: snap,
		Camera:      cameraOpener(cfg.Camera),
		Logo:        logoSource(cfg.Logo),
		Outputs:     outputs,
	}
}

// selectInitial applies --window-id or --window, if given
func selectInitial(sess *session.Session, id uint32, pattern string) error {
	switch {
	case id != 0:
		return sess.SelectByID(id)
	case pattern != "":
		_, err := sess.SelectMatching(pattern)
		return err
	default:
		_, err := sess.Windows()
		return err
	}
}
