package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bigjimnolan/sssaitrigger/controller"
)

func main() {
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("sssai-trigger", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to settings file (.json, .jsonc, .yaml); defaults to $"+controller.ConfigEnvVar)
	flagSet.StringVar(&logLevel, "log-level", "", "override log_level from the config (trace, debug, info, warn, error)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	controller.StartHere(configPath, logLevel)
}
