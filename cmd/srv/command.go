package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

func (s *srv) loadApp() {
	app := cli.NewApp()
	app.Action = cli.ShowAppHelp
	app.Name = "Relaydesk"
	app.Usage = ""
	app.Commands = []*cli.Command{
		{
			Action:      server.startApi,
			Name:        "api",
			Usage:       "Start the api service",
			Category:    "Api",
			Description: `Serves the connect flow and the operation endpoint.`,
		},
		{
			Action:   server.startSweep,
			Name:     "sweep",
			Usage:    "Remove stale authorization states",
			Category: "Worker",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "grace",
					Usage: "keep expired states around this long for debugging",
					Value: 24 * time.Hour,
				},
			},
			Description: `Deletes expired authorization states. Intended to run as a periodic job.`,
		},
	}

	s.app = app
}
