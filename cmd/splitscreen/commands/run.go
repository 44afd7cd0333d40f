package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SplitScreen/internal/api"
	"github.com/bryanchriswhite/SplitScreen/internal/display"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the composed view",
	Long: `Open the composed view window and keep the app, camera and logo panels
refreshed until the window is closed or the process is interrupted.

The window to show can be chosen up front or later through the control API.`,
	Example: `  # Start and pick a window later via the API
  splitscreen run

  # Show the first window whose title matches a pattern
  splitscreen run --window "Firefox"

  # Show a window by X11 id, without the camera
  splitscreen run --window-id 0x3a00007 --no-camera

  # Headless: control API only, no composed view window
  splitscreen run --no-display`,
	RunE: runRun,
}

var (
	runWindow    string
	runWindowID  string
	runNoCamera  bool
	runNoDisplay bool
	runNoServer  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWindow, "window", "w", "", "select the first window whose title or class matches this regex")
	runCmd.Flags().StringVar(&runWindowID, "window-id", "", "select a window by X11 id (decimal or 0x hex)")
	runCmd.Flags().BoolVar(&runNoCamera, "no-camera", false, "disable the camera panel")
	runCmd.Flags().BoolVar(&runNoDisplay, "no-display", false, "do not open the composed view window")
	runCmd.Flags().BoolVar(&runNoServer, "no-server", false, "do not start the control API")
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("run")

	cfg := configMgr.Get()
	if err := validate(cfg); err != nil {
		return err
	}
	if runNoCamera {
		cfg.Camera.Enabled = false
	}
	if runNoDisplay {
		cfg.Display.Enabled = false
	}
	if runNoServer {
		cfg.ServerEnabled = false
	}
	windowID, err := parseWindowID(runWindowID)
	if err != nil {
		return err
	}

	log.Info().Str("path", configMgr.GetConfigPath()).Msg("Configuration loaded")

	var (
		outputs []output.Output
		closed  <-chan struct{}
	)
	if cfg.Display.Enabled {
		view, err := display.NewManager(display.Options{
			Width:  cfg.Display.Width,
			Height: cfg.Display.Height,
			Title:  cfg.Display.Title,
		})
		if err != nil {
			return fmt.Errorf("failed to open composed view: %w", err)
		}
		outputs = append(outputs, view)
		closed = view.Closed()
	}

	sess, err := buildSession(cfg, outputs)
	if err != nil {
		for _, out := range outputs {
			out.Stop()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		sess.Close(context.Background())
		return fmt.Errorf("failed to start session: %w", err)
	}

	if err := selectInitial(sess, windowID, runWindow); err != nil {
		log.Warn().Err(err).Msg("No window selected at startup")
	}

	serverErr := make(chan error, 1)
	if cfg.ServerEnabled {
		server := api.NewServer(sess, configMgr)
		go func() {
			serverErr <- server.Start(ctx, cfg.ServerPort)
		}()
	}

	fmt.Println()
	log.Info().Str("session", sess.ID()).Msg("✅ SplitScreen is running")
	if cfg.ServerEnabled {
		log.Info().Msgf("   - API: http://127.0.0.1:%d/api", cfg.ServerPort)
	}
	log.Info().Msg("   - Press Ctrl+C to stop")
	fmt.Println()

	select {
	case <-ctx.Done():
		log.Info().Msg("Interrupted")
	case <-closed:
		log.Info().Msg("Composed view closed")
	case <-sess.Done():
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Control API stopped")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
	stop()
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if closeErr := sess.Close(closeCtx); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}
