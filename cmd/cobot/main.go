package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"cobot.json" description:"Workcell configuration file"`
	Env    string `long:"env" default:".env" description:"Environment file with COBOT_* overrides"`
	Debug  bool   `short:"d" long:"debug" description:"Enable debug logging"`

	Setup   SetupCommand   `command:"setup" description:"Find the tool board, calibrate it and write the config"`
	Info    InfoCommand    `command:"info" description:"Show serial ports, tool board and locator status"`
	Acquire AcquireCommand `command:"acquire" alias:"pick" description:"Pick up an object and place it at the drop pose"`
	Center  CenterCommand  `command:"center" description:"Center the camera over an object"`
	Home    HomeCommand    `command:"home" description:"Move the arm to its home pose"`
	Scan    ScanCommand    `command:"scan" description:"Move to the scan pose and list visible objects"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "cobot - locate, pick and place objects with a suction cobot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
