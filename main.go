package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"supportdesk_back/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("supportdesk failed")
		os.Exit(1)
	}
}
