// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   defaultConfigPath,
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Base URL of a running conversion server (default: http://localhost:<server.port>)",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand handles database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the HTTP API and the conversion workers.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the conversion HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// convertCommand runs a single conversion in-process.
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert one Spotify playlist and watch its progress",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write the track report when done (text, csv or markdown)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report file path (default: <conversion id>_tracks.<ext>)",
			},
		},
		Action: r.Convert,
	}
}

// jobsCommand talks to a running server about conversions.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Aliases: []string{"job"},
		Usage:   "Manage conversions on a running server",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start converting a Spotify playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags:  []cli.Flag{serverFlag()},
				Action: r.JobsStart,
			},
			{
				Name:   "list",
				Usage:  "List recent conversions",
				Flags:  []cli.Flag{serverFlag(), jsonFlag()},
				Action: r.JobsList,
			},
			{
				Name:  "status",
				Usage: "Show a conversion's status",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{serverFlag(), jsonFlag()},
				Action: r.JobsStatus,
			},
			{
				Name:  "cancel",
				Usage: "Cancel a running conversion",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{serverFlag()},
				Action: r.JobsCancel,
			},
			{
				Name:  "export",
				Usage: "Export a completed conversion's track report",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					serverFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format (text, csv or markdown)",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path, or - for stdout (default: <conversion id>_tracks.<ext>)",
					},
				},
				Action: r.JobsExport,
			},
		},
	}
}

// systemCommand shows server load.
func systemCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "system",
		Usage:  "Show server load and capacity",
		Flags:  []cli.Flag{serverFlag(), jsonFlag()},
		Action: r.System,
	}
}
