package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory's entries, or stat a single file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}

		image, err := requireImage()
		if err != nil {
			return err
		}
		dev, err := device.Open(image, "kfsutil-ls")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}

		t := fs.Begin()
		defer t.End()

		dp, err := fs.Namei(t, path, nil)
		if err != nil {
			return err
		}
		fs.Ilock(dp)

		color := isatty.IsTerminal(os.Stdout.Fd())

		if !dp.Type.IsDir() {
			st := fs.Stati(dp)
			fs.IunlockPut(t, dp)
			fmt.Println(formatEntry(st.Type, path, st.Size, color))
			return nil
		}

		entries, err := fs.ListDirents(dp)
		fs.IunlockPut(t, dp)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ip := fs.Iget(kfs.ROOTDEV, e.Inum)
			fs.Ilock(ip)
			st := fs.Stati(ip)
			fs.IunlockPut(t, ip)
			fmt.Println(formatEntry(st.Type, e.Name, st.Size, color))
		}
		return nil
	},
}

func typeChar(t kfs.Type) string {
	switch {
	case t.IsDir():
		return "d"
	case t.IsSymlink():
		return "l"
	default:
		return "-"
	}
}

func formatEntry(typ kfs.Type, name string, size uint32, color bool) string {
	line := fmt.Sprintf("%s %8d %s", typeChar(typ), size, name)
	if color && typ.IsDir() {
		return "\x1b[34m" + line + "\x1b[0m"
	}
	return line
}

func init() { rootCmd.AddCommand(lsCmd) }
