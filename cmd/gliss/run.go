// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eutro/gliss/internal/gc"
	"github.com/eutro/gliss/internal/image"
	"github.com/eutro/gliss/internal/interp"
	"github.com/eutro/gliss/internal/rtlog"
)

// runCmd implements `run <image-file>...`: each file is loaded into
// the same process, in order; for each, the start code block runs (if
// present), then main is invoked if bound. Exit code 0 on success, 1
// on any error (reported with its trace), 2 if writing that report
// itself fails.
func runCmd() *cobra.Command {
	var repl bool
	cmd := &cobra.Command{
		Use:   "run <image-file>...",
		Short: "Load and run one or more gliss bytecode images",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := interp.NewProcess(gc.DefaultConfig, args)

			if len(args) == 0 {
				if repl || isTerminal(os.Stdin) {
					runREPL(p)
					return nil
				}
				exitf(2, "gliss run: no image file given\n")
			}

			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					reportFatal(err.Error())
				}
				img, ierr := image.IndexImage(p.Alloc, raw)
				if ierr != nil {
					reportFatal(ierr.Error())
				}
				if verr := image.Verify(img); verr != nil {
					reportFatal(verr.Error())
				}
				imgIdx := p.RegisterImage(img)

				rtlog.Infof("running %s", path)
				if _, rerr := p.Run(imgIdx); rerr != nil {
					reportFatal(p.FormatError(rerr))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repl, "repl", false, "start an interactive eval loop instead of requiring image files")
	return cmd
}

// reportFatal prints msg as a fatal top-level failure and exits 1, or
// 2 if even that write fails.
func reportFatal(msg string) {
	if _, err := fmt.Fprintln(os.Stderr, msg); err != nil {
		exitf(2, "gliss: failed to report error: %v\n", err)
	}
	os.Exit(1)
}
