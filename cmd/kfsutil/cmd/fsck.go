package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
	"github.com/kfsdev/kfs/fsck"
)

var fsckChecksum bool

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Verify a kfs image's structural invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}
		dev, err := device.Open(image, "kfsutil-fsck")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}

		report, err := fsck.Check(fs, fsck.Options{Checksum: fsckChecksum})
		if err != nil {
			return err
		}

		if report.Clean() {
			fmt.Println("clean")
		} else {
			for _, p := range report.Problems {
				fmt.Printf("%s: %s\n", p.Check, p.Description)
			}
		}
		if fsckChecksum {
			fmt.Printf("checksum: %x\n", report.Checksum)
		}
		if !report.Clean() {
			return fmt.Errorf("fsck: %d problem(s) found", len(report.Problems))
		}
		return nil
	},
}

func init() {
	fsckCmd.Flags().BoolVar(&fsckChecksum, "checksum", false, "also compute a whole-device blake2b checksum")
	rootCmd.AddCommand(fsckCmd)
}
