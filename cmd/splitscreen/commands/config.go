package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage SplitScreen configuration",
	Long:  `View and manage SplitScreen configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current SplitScreen configuration, including environment overrides.`,
	Example: `  # Show configuration as YAML (default)
  splitscreen config show

  # Show configuration as JSON
  splitscreen config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value. Values that fail validation are rejected.`,
	Example: `  # Use the second camera
  splitscreen config set camera.device 1

  # Lower the window capture rate
  splitscreen config set window_capture.fps 5`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get the camera driver
  splitscreen config get camera.driver

  # Get the failure threshold of the app panel
  splitscreen config get window_capture.failure_threshold`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	Long:  `Report values that would be clamped at startup and values that prevent startup.`,
	RunE:  runConfigValidate,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := configMgr.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	fmt.Printf("✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !configMgr.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Println(configMgr.GetValue(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	warnings, err := configMgr.Get().Validate()
	for _, w := range warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	if err != nil {
		return err
	}
	if len(warnings) == 0 {
		fmt.Println("✅ Configuration is valid")
	}
	return nil
}
