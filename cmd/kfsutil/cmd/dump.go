package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/google/btree"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/kfsdev/kfs"
	"github.com/kfsdev/kfs/device"
)

var (
	dumpCompress string
	dumpOut      string
)

// inodeRecord is a presentation-only sorted view of one allocated dinode;
// it never touches the core's own inode cache, which stays a linear scan.
type inodeRecord struct {
	Inum  uint32
	Type  kfs.Type
	Nlink uint16
	Size  uint32
}

func (r inodeRecord) Less(than btree.Item) bool {
	return r.Inum < than.(inodeRecord).Inum
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write a compressed debug snapshot of bitmap and inode-table state",
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := requireImage()
		if err != nil {
			return err
		}
		dev, err := device.Open(image, "kfsutil-dump")
		if err != nil {
			return err
		}
		defer dev.Close()

		fs, err := kfs.Fsinit(dev, 64)
		if err != nil {
			return err
		}
		sb := fs.Superblock()

		tree := btree.New(32)
		for inum := uint32(1); inum < sb.Ninodes; inum++ {
			d, err := fs.ReadDinode(inum)
			if err != nil {
				return err
			}
			if d.Type == kfs.TypeFree {
				continue
			}
			tree.ReplaceOrInsert(inodeRecord{Inum: inum, Type: d.Type, Nlink: d.Nlink, Size: d.Size})
		}

		var body bytes.Buffer
		fmt.Fprintf(&body, "kfs dump: %s\n", image)
		fmt.Fprintf(&body, "blocks=%d inodes=%d nlog=%d\n", sb.Nblocks, sb.Ninodes, sb.Nlog)

		fmt.Fprintln(&body, "bitmap:")
		for b := sb.DataStart(); b < sb.DataStart()+sb.Nblocks; b++ {
			bit := byte('0')
			if fs.BitmapBit(b) {
				bit = '1'
			}
			body.WriteByte(bit)
		}
		body.WriteByte('\n')

		fmt.Fprintln(&body, "inodes:")
		tree.Ascend(func(item btree.Item) bool {
			r := item.(inodeRecord)
			fmt.Fprintf(&body, "  %d type=%s nlink=%d size=%d\n", r.Inum, r.Type, r.Nlink, r.Size)
			return true
		})

		out := dumpOut
		if out == "" {
			out = image + ".dump"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := writeCompressed(f, body.Bytes(), dumpCompress); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%s-compressed)\n", out, dumpCompress)
		return nil
	},
}

func writeCompressed(f *os.File, data []byte, compress string) error {
	switch compress {
	case "gzip", "":
		w := gzip.NewWriter(f)
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Close()
	case "xz":
		w, err := xz.NewWriter(f)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Close()
	default:
		return fmt.Errorf("kfsutil dump: unknown --compress %q (want gzip or xz)", compress)
	}
}

func init() {
	dumpCmd.Flags().StringVar(&dumpCompress, "compress", "gzip", "compression to use: gzip or xz")
	dumpCmd.Flags().StringVar(&dumpOut, "out", "", "output path (default: <image>.dump)")
	rootCmd.AddCommand(dumpCmd)
}
