package main

import (
	"os"

	"github.com/quarry-dbg/quarry/cmd/quarry/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
