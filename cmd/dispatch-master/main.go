package main

import (
	"os"

	"github.com/G-Research/dispatch/cmd/dispatch-master/cmd"
	"github.com/G-Research/dispatch/internal/common"
)

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
