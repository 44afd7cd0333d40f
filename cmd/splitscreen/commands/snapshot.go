package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/output"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write one composed frame to a PNG file",
	Long: `Run the pipeline without the composed view window for a short time and
write the last composed frame to a PNG file.`,
	Example: `  # Compose the first terminal window with the camera for two seconds
  splitscreen snapshot --window "Terminal" --out split.png

  # Without the camera
  splitscreen snapshot --window-id 0x3a00007 --no-camera`,
	RunE: runSnapshot,
}

var (
	snapshotOut      string
	snapshotDuration time.Duration
	snapshotWindow   string
	snapshotWindowID string
	snapshotNoCamera bool
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "splitscreen.png", "output PNG path")
	snapshotCmd.Flags().DurationVarP(&snapshotDuration, "duration", "d", 2*time.Second, "how long to run before writing the frame")
	snapshotCmd.Flags().StringVarP(&snapshotWindow, "window", "w", "", "select the first window whose title or class matches this regex")
	snapshotCmd.Flags().StringVar(&snapshotWindowID, "window-id", "", "select a window by X11 id (decimal or 0x hex)")
	snapshotCmd.Flags().BoolVar(&snapshotNoCamera, "no-camera", false, "disable the camera panel")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	if err := validate(cfg); err != nil {
		return err
	}
	cfg.Display.Enabled = false
	cfg.ServerEnabled = false
	if snapshotNoCamera {
		cfg.Camera.Enabled = false
	}
	windowID, err := parseWindowID(snapshotWindowID)
	if err != nil {
		return err
	}

	file := output.NewFileOutput(snapshotOut)
	sess, err := buildSession(cfg, []output.Output{file})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), snapshotDuration)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		sess.Close(context.Background())
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err := selectInitial(sess, windowID, snapshotWindow); err != nil {
		logger.WithComponent("snapshot").Warn().Err(err).Msg("No window selected")
	}

	<-ctx.Done()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer closeCancel()
	if err := sess.Close(closeCtx); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	fmt.Printf("✅ Wrote %s (%d frames composed)\n", snapshotOut, file.Frames())
	return nil
}
