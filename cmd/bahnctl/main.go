// Package main provides the bahnctl command line client.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bahnmcp/bahnmcp/internal/bahnctl"
	"github.com/bahnmcp/bahnmcp/internal/clock"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := bahnctl.NewApp(os.Stdout, clock.Now).Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
