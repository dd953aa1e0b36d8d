package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// runFlags returns the flags shared by every command that simulates.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path to a YAML run file",
		},
		&cli.BoolFlag{
			Name:  "disable-strict-config",
			Usage: "accept unknown keys in the run file",
		},
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   ".env file to load before reading MVDASH_* variables",
			Value:   ".env",
			EnvVars: []string{"MVDASH_ENV_FILE"},
		},
		&cli.IntFlag{
			Name:    "sim-id",
			Usage:   "simulation index, used in log file names",
			EnvVars: []string{"MVDASH_SIM_ID"},
		},
		&cli.DurationFlag{
			Name:    "sim-time",
			Usage:   "simulated time after which clients are stopped",
			EnvVars: []string{"MVDASH_SIM_TIME"},
		},
		&cli.IntFlag{
			Name:    "clients",
			Usage:   "number of clients sharing the bottleneck",
			EnvVars: []string{"MVDASH_CLIENTS"},
		},
		&cli.StringFlag{
			Name:    "bandwidth",
			Usage:   "bottleneck rate, e.g. 5Mbps",
			EnvVars: []string{"MVDASH_BANDWIDTH"},
		},
		&cli.StringFlag{
			Name:    "bandwidth-trace",
			Usage:   "file of \"time_us bps\" lines changing the bottleneck rate",
			EnvVars: []string{"MVDASH_BANDWIDTH_TRACE"},
		},
		&cli.DurationFlag{
			Name:    "delay",
			Usage:   "one-way delay between clients and server",
			EnvVars: []string{"MVDASH_DELAY"},
		},
		&cli.IntFlag{
			Name:    "max-pending",
			Usage:   "sub-requests a client may have queued at the server (0 = unlimited)",
			EnvVars: []string{"MVDASH_MAX_PENDING"},
		},
		&cli.StringFlag{
			Name:    "catalog",
			Usage:   "segment size table",
			EnvVars: []string{"MVDASH_CATALOG"},
		},
		&cli.StringFlag{
			Name:    "quality",
			Usage:   "perceptual quality score table",
			EnvVars: []string{"MVDASH_QUALITY"},
		},
		&cli.StringFlag{
			Name:    "vp-model",
			Usage:   "viewpoint model [free, markovian]",
			EnvVars: []string{"MVDASH_VP_MODEL"},
		},
		&cli.StringFlag{
			Name:    "vp-trace",
			Usage:   "viewpoint transition file for the markovian model",
			EnvVars: []string{"MVDASH_VP_TRACE"},
		},
		&cli.Int64Flag{
			Name:    "seed",
			Usage:   "seed of the free viewpoint model (0 = built-in)",
			EnvVars: []string{"MVDASH_SEED"},
		},
		&cli.StringFlag{
			Name:    "algorithm",
			Usage:   "rate adaptation [mpc, panda, tobasco, qmetric, naive]",
			EnvVars: []string{"MVDASH_ALGORITHM"},
		},
		&cli.StringFlag{
			Name:    "request-mode",
			Usage:   "request shape [group, single, group_sg, hybrid]",
			EnvVars: []string{"MVDASH_REQUEST_MODE"},
		},
		&cli.StringFlag{
			Name:    "forecast",
			Usage:   "throughput forecast of mpc and qmetric [robust, last]",
			EnvVars: []string{"MVDASH_FORECAST"},
		},
		&cli.DurationFlag{
			Name:    "buffer-high",
			Usage:   "buffer level above which requests are delayed",
			EnvVars: []string{"MVDASH_BUFFER_HIGH"},
		},
		&cli.StringFlag{
			Name:    "out",
			Usage:   "directory for history dumps",
			EnvVars: []string{"MVDASH_OUT"},
		},
		&cli.BoolFlag{
			Name:  "no-dump",
			Usage: "do not write history dumps",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "serve the status API and metrics on this address while running",
			EnvVars: []string{"MVDASH_METRICS_ADDR"},
		},
	}
}

var logFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: []string{"MVDASH_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Value:   "text",
		Usage:   "json or text",
		EnvVars: []string{"MVDASH_LOG_FORMAT"},
	},
}

func main() {
	app := &cli.App{
		Name:  "mvdash",
		Usage: "multi-view adaptive streaming client simulator",
		Flags: logFlags,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "simulate clients and print their summary",
				Flags:  runFlags(),
				Action: runCommand,
			},
			{
				Name:  "sweep",
				Usage: "run every algorithm and request mode combination in parallel",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{
						Name:  "algorithms",
						Value: cli.NewStringSlice("mpc", "panda", "tobasco", "qmetric", "naive"),
					},
					&cli.StringSliceFlag{
						Name:  "modes",
						Value: cli.NewStringSlice("group", "single", "group_sg", "hybrid"),
					},
					&cli.IntFlag{
						Name:    "workers",
						Value:   4,
						EnvVars: []string{"MVDASH_WORKERS"},
					},
				}, runFlags()...),
				Action: sweepCommand,
			},
			{
				Name:   "serve",
				Usage:  "run a simulation and keep serving its status until interrupted",
				Flags:  runFlags(),
				Action: serveCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
