// Package main runs a detection pipeline from a config file.
package main

import (
	"go.viam.com/utils"

	// registers all capture sources and sinks.
	_ "github.com/trip2/videodetect/components/register"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/server"
)

var logger = logging.NewLogger("videodetect")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
