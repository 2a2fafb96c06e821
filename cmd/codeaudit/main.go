package main

import (
	"github.com/spf13/cobra"
)

// Version is set at compile time
var Version = "dev"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:     "codeaudit",
	Short:   "codeaudit - hybrid pattern and model-assisted vulnerability detection",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
