// Package cmd implements kfsutil's command tree, grounded on gcsfuse's
// own cmd/root.go: a spf13/cobra root command with persistent flags bound
// through spf13/viper, an optional YAML config file, and structured
// logging switched on at startup.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kfsdev/kfs/logger"
	"github.com/kfsdev/kfs/mkfs"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kfsutil",
	Short: "Format, check, seed, and inspect kfs images",
	Long: `kfsutil is the operator CLI for kfs, a crash-consistent on-disk
filesystem core. Apart from the optional FUSE-backed mount subcommand,
every subcommand drives the core's own operations directly, the same way
a kernel using kfs would.`,
}

// Execute runs the command tree, printing any error to stderr and exiting
// non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("image", "", "path to the kfs image file")
	rootCmd.PersistentFlags().String("log-file", "", "write structured logs here instead of stderr")
	viper.BindPFlag("image", rootCmd.PersistentFlags().Lookup("image"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	viper.SetDefault("data_blocks", mkfs.DefaultOptions.DataBlocks)
	viper.SetDefault("ninodes", mkfs.DefaultOptions.Ninodes)
	viper.SetDefault("nlog_blocks", mkfs.DefaultOptions.NlogBlocks)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "kfsutil: reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
	if logFile := viper.GetString("log_file"); logFile != "" {
		logger.Init(logFile, 10, 3, 28)
	}
}

// requireImage returns the configured image path or an error naming the
// flag the caller needs to set.
func requireImage() (string, error) {
	image := viper.GetString("image")
	if image == "" {
		return "", fmt.Errorf("kfsutil: --image (or \"image\" in --config-file) is required")
	}
	return image, nil
}
