package main

import (
	"os"

	"github.com/G-Research/dispatch/cmd/dispatchctl/cmd"
	"github.com/G-Research/dispatch/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
