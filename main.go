package main

import (
	"github.com/omaps-oss/resman/cmd"
	"github.com/omaps-oss/resman/internal"
	"github.com/omaps-oss/resman/internal/config"
)

func init() {
	config.InitConfig()
	config.InitViper()
	internal.InitLogging()
}
func main() {
	cmd.Execute()
}
