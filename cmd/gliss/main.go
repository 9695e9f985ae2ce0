// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The gliss tool loads and runs bytecode images: "gliss help" for a
// list of commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

func main() {
	root := &cobra.Command{
		Use:   "gliss",
		Short: "Load and run gliss bytecode images",
	}
	root.AddCommand(runCmd())
	root.AddCommand(dumpCmd())
	if err := root.Execute(); err != nil {
		exitf(2, "%v\n", err)
	}
}
