package main

import (
	"os"

	"github.com/Srjnnnn/blendgate/cmd/blendgate/monitor"
)

func monitorCmd() {
	monitor.Run(addrFromArgs(os.Args[2:]))
}
