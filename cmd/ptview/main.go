package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli"
)

func init() {
	runtime.LockOSThread()
}

var commonFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "YAML settings file"},
	cli.IntFlag{Name: "width", Usage: "output width in pixels"},
	cli.IntFlag{Name: "height", Usage: "output height in pixels"},
	cli.IntFlag{Name: "samples, s", Usage: "samples per pixel"},
	cli.StringFlag{Name: "mode, m", Usage: "render mode (progressive or tiled)"},
	cli.IntFlag{Name: "tiles", Usage: "tile grid size for tiled mode"},
	cli.Uint64Flag{Name: "seed", Usage: "sampler seed"},
	cli.Float64Flag{Name: "exposure", Value: 1, Usage: "display exposure"},
	cli.BoolFlag{Name: "denoise", Usage: "denoise the finished image in the background"},
	cli.BoolFlag{Name: "debug", Usage: "enable debug logging and stage timings"},
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ptview"
	app.Usage = "progressive path tracer"
	app.Commands = []cli.Command{
		{
			Name:   "view",
			Usage:  "open an interactive window",
			Flags:  append(commonFlags, cli.StringFlag{Name: "font", Usage: "TrueType font for the status overlay"}),
			Action: View,
		},
		{
			Name:  "render",
			Usage: "render offline and write an image",
			Flags: append(commonFlags,
				cli.StringFlag{Name: "out, o", Value: "render.png", Usage: "output file (.png or .exr)"},
				cli.IntFlag{Name: "frames", Usage: "stop after this many frames (0 renders to completion)"},
			),
			Action: Render,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
