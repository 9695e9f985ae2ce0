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
)

// dumpCmd implements `dump <image-file>...`: index (but do not verify
// or run) each image and disassemble it for inspection.
func dumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <image-file>...",
		Short: "Disassemble gliss bytecode images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc := gc.NewAllocator(gc.DefaultConfig)
			alloc.Init()
			alloc.InitCoreTypes()
			alloc.InitSymbolTable()

			for i, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					reportFatal(err.Error())
				}
				img, ierr := image.IndexImage(alloc, raw)
				if ierr != nil {
					reportFatal(ierr.Error())
				}

				if i > 0 {
					fmt.Println()
				}
				fmt.Printf("== %s ==\n", path)
				if derr := image.Disassemble(img, os.Stdout); derr != nil {
					reportFatal(derr.Error())
				}
			}
			return nil
		},
	}
	return cmd
}
