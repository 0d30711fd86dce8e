package main

import (
	"os"

	"github.com/rvdbg/rvframe/cmd/rvframe/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
