//go:build fuse

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
	"github.com/kfsdev/kfs/fuseadapter"
)

var mountCmd = &cobra.Command{
	Use:   "mount <dir>",
	Short: "Mount a kfs image at dir via FUSE, for manual end-to-end testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}
		dev, err := device.Open(image, "kfsutil-mount")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}

		server, err := fuseadapter.Mount(fs, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("mounted %s at %s (unmount with fusermount -u, or Ctrl-C)\n", image, args[0])
		server.Wait()
		return nil
	},
}

func init() { rootCmd.AddCommand(mountCmd) }
