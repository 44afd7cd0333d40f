package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SplitScreen/internal/config"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

var (
	cfgFile   string
	prettyLog bool
	rootCmd   = &cobra.Command{
		Use:   "splitscreen",
		Short: "SplitScreen - Compose an application window, a camera and a logo",
		Long: `SplitScreen shows one selected application window next to a live camera
feed and a logo panel in a single composed view.

Features:
  • Select any top-level X11 window by id or title pattern
  • Live camera panel via V4L2 or GStreamer
  • Capture failures are isolated per panel
  • Persistent configuration with environment overrides
  • Local REST and WebSocket control API`,
		SilenceUsage: true,
	}
)

// flagKeys maps persistent flags to the configuration keys they override
var flagKeys = map[string]string{
	"log-level": "log_level",
	"port":      "server_port",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/splitscreen/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 8080, "control API port")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", true, "human-readable console logs")
}

// loadConfig opens the configuration, applies explicitly set flags and
// initializes logging from the result
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := configMgr.BindFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to apply --%s: %w", name, err)
		}
	}

	logger.Init(configMgr.Get().LogLevel, prettyLog)
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
