// Command kfsutil is the operator-facing CLI around the kfs core: format
// images, check them, seed them from a cpio archive, and inspect their
// contents without a kernel mount.
package main

import "github.com/kfsdev/kfs/cmd/kfsutil/cmd"

func main() {
	cmd.Execute()
}
