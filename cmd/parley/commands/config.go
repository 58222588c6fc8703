package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and bootstrap configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as JSON",
	RunE:  runConfigShow,
}

var configInitGlobal bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter parley.json to .parley/ in the current directory,
or to the global config directory with --global. Existing files are
left untouched.`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitGlobal, "global", false, "Write to the global config directory instead of ./.parley/")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ""
	if configInitGlobal {
		path = config.GlobalConfigPath()
	} else {
		workDir, err := GetWorkDir("")
		if err != nil {
			return err
		}
		path = config.DirectoryConfigPath(workDir)
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	starter := starterConfig()
	if err := config.Save(starter, path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set forward.url to your agent endpoint, then run 'parley serve'.")
	return nil
}

// starterConfig is the skeleton config init writes: the fields every
// deployment has to fill in, with engine tunables left to their defaults.
func starterConfig() *types.Config {
	timeout := 120
	return &types.Config{
		Schema: "https://parley.dev/config.json",
		Owner:  "",
		Forward: &types.ForwardConfig{
			URL:            "http://localhost:8080/message",
			TimeoutSeconds: &timeout,
		},
		Log: &types.LogConfig{
			Level: "info",
		},
	}
}
