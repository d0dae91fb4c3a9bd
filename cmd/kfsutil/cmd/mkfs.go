package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kfsdev/kfs/mkfs"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format a new, empty kfs image",
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}
		opts := mkfs.Options{
			DataBlocks: viper.GetUint32("data_blocks"),
			Ninodes:    viper.GetUint32("ninodes"),
			NlogBlocks: viper.GetUint32("nlog_blocks"),
		}
		if err := mkfs.Create(image, opts); err != nil {
			return err
		}
		fmt.Printf("formatted %s: %d data blocks, %d inodes, %d log blocks\n",
			image, opts.DataBlocks, opts.Ninodes, opts.NlogBlocks)
		return nil
	},
}

func init() {
	mkfsCmd.Flags().Uint32("data-blocks", 0, "number of data blocks")
	mkfsCmd.Flags().Uint32("inodes", 0, "number of inodes")
	mkfsCmd.Flags().Uint32("log-blocks", 0, "number of log blocks")
	viper.BindPFlag("data_blocks", mkfsCmd.Flags().Lookup("data-blocks"))
	viper.BindPFlag("ninodes", mkfsCmd.Flags().Lookup("inodes"))
	viper.BindPFlag("nlog_blocks", mkfsCmd.Flags().Lookup("log-blocks"))
	rootCmd.AddCommand(mkfsCmd)
}
