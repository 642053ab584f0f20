// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command authsigncode signs, verifies and manages Authenticode signatures
// (sign, extract-signature, remove-signature, verify) over PE/CAB/MSI files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

// Version is set so cobra auto-registers both -v and --version; cobra only
// assigns the -v shorthand itself when the flag isn't already taken, which
// it isn't here.
var rootCmd = &cobra.Command{
	Use:     "authsigncode",
	Short:   "Authenticode signing, verification and signature management for PE/CAB/MSI files",
	Version: version,
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	// Accept the single-dash long options (-in, -spc, -h ...) by rewriting
	// each one that names a flag of the selected command to its "--" form.
	args := os.Args[1:]
	if cmd, _, err := rootCmd.Find(args); err == nil {
		for i, a := range args {
			if len(a) > 1 && a[0] == '-' && a[1] != '-' && cmd.Flags().Lookup(a[1:]) != nil {
				args[i] = "-" + a
			}
		}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Failed")
		os.Exit(1)
	}
}
