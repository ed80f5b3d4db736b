package main

import (
	"fmt"
	"os"

	"github.com/go-delve/mdb/cmd/mdb/cmds"
	"github.com/go-delve/mdb/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.MDBVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mdb: %v\n", err)
		os.Exit(1)
	}
}
