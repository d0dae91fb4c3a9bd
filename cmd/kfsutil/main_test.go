package main

import (
	"os"
	"testing"

	"github.com/cavaliercoder/go-cpio"
	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain lets testscript re-exec this binary as the "kfsutil" command
// inside each script, instead of requiring a separately built binary on
// PATH.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"kfsutil": run,
	}))
}

func run() int {
	main()
	return 0
}

func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"mkcpio": mkcpio,
		},
	})
}

// mkcpio writes a tiny fixed newc archive to args[0], for scripts that
// need a "seed" target without shipping a binary archive in testdata.
func mkcpio(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: mkcpio <output>")
	}
	f, err := os.Create(ts.MkAbs(args[0]))
	ts.Check(err)
	defer f.Close()

	w := cpio.NewWriter(f)
	entries := []struct {
		name    string
		mode    cpio.FileMode
		content string
	}{
		{"etc", cpio.TypeDir | 0755, ""},
		{"etc/motd", cpio.TypeReg | 0644, "hello from kfsutil seed\n"},
	}
	for _, e := range entries {
		ts.Check(w.WriteHeader(&cpio.Header{Name: e.name, Mode: e.mode, Size: int64(len(e.content))}))
		if e.content != "" {
			_, err := w.Write([]byte(e.content))
			ts.Check(err)
		}
	}
	ts.Check(w.Close())
}
