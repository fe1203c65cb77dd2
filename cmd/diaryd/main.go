// Command diaryd runs the diary companion: the HTTP and websocket server,
// plus maintenance commands for the diary index.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nabiya/diarymem/config"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "diaryd",
	Short:        "Conversational diary companion",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Log.Apply(cmd.ErrOrStderr()); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"TOML config file (default $"+config.EnvConfigFile+" or "+config.DefaultFile+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
