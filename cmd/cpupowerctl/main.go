// Package main is the entry point for cpupowerctl, the command-line front
// end to the cpupower helper.
package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(&app{out: os.Stdout, errOut: os.Stderr}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Fail.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
