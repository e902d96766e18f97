package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/daemon"
)

func init() {
	daemon.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := daemon.Main(); err != nil {
		glog.Exit(err)
	}
}
