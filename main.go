package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/discord-bridge/cmd"
)

func main() {
	app := &cli.Command{
		Name:  "discord-bridge",
		Usage: "A unidirectional bridge from a Discord Gateway session to HTTP sinks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: "discord-bridge.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.InitCommand(),
			cmd.RoutesCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "discord-bridge: %v\n", err)
		os.Exit(1)
	}
}
