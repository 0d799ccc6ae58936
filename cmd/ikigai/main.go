// Command ikigai is the interactive multi-agent conversation REPL.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/mgreenly/ikigai-sub013/common"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cmd := &cli.Command{
		Name:  "ikigai",
		Usage: "Interactive multi-agent LLM conversation engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "Resume an existing session by id"},
			&cli.StringFlag{Name: "db", Usage: "Path to the SQLite database file", Value: defaultDBPath()},
			&cli.StringFlag{Name: "provider", Usage: "Default provider for the root agent (openai, anthropic, google)"},
			&cli.StringFlag{Name: "model", Usage: "Default model for the root agent"},
			&cli.BoolFlag{Name: "debug", Usage: "Accepted but has no effect; there is no provider debug output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ikigai:", err)
		os.Exit(1)
	}
}

func defaultDBPath() string {
	dir, err := common.GetIkigaiDataHome()
	if err != nil {
		return "ikigai.db"
	}
	return filepath.Join(dir, "ikigai.db")
}
