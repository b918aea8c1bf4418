// Package main provides the sysprint command: it records file-tree
// fingerprints, compares them, and talks to the sysprintd repository.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
