// Package main is the entry point for stackguard.
package main

import (
	"errors"
	"os"
	"os/exec"
)

func main() {
	if err := Execute(); err != nil {
		// lock run passes the wrapped command's exit status through.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
