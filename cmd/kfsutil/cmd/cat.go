package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}
		dev, err := device.Open(image, "kfsutil-cat")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}

		t := fs.Begin()
		ip, err := fs.Open(t, args[0], nil, kfs.OpenFlags{})
		if err != nil {
			t.End()
			return err
		}
		defer func() {
			fs.IunlockPut(t, ip)
			t.End()
		}()

		if ip.Type.IsDir() {
			return fmt.Errorf("kfsutil cat: %s is a directory", args[0])
		}

		buf := make([]byte, kfs.BSIZE)
		var off uint32
		for {
			n, err := fs.Readi(ip, buf, off)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			if _, err := os.Stdout.Write(buf[:n]); err != nil {
				return err
			}
			off += uint32(n)
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(catCmd) }
