package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/cpioseed"
	"github.com/kfsdev/kfs/device"
)

var seedCmd = &cobra.Command{
	Use:   "seed <archive.cpio>",
	Short: "Populate a freshly formatted image from a cpio (newc) archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}

		archive, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer archive.Close()

		dev, err := device.Open(image, "kfsutil-seed")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}

		n, err := cpioseed.Seed(fs, archive)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d entries into %s\n", n, image)
		return nil
	},
}

func init() { rootCmd.AddCommand(seedCmd) }
